package replay

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/adhash-engine/adhash/internal/errs"
)

// OpKind is one of the three operations a replay stream may carry.
type OpKind int

const (
	OpPut OpKind = iota
	OpGet
	OpDel
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpGet:
		return "get"
	case OpDel:
		return "del"
	default:
		return "unknown"
	}
}

// Op is a single parsed row of an operation stream.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
}

// Limits bounds an operation stream before any operation is executed.
type Limits struct {
	MaxRows  int
	MaxBytes int64
}

// countingReader tracks bytes consumed so ReadStream can enforce MaxBytes
// without buffering the whole stream in memory.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	if c.limit > 0 && c.n > c.limit {
		return n, errs.New(errs.KindBadInput, "operation stream exceeds max_input_bytes", errs.Hint("reduce the stream size or raise replay.max_input_bytes"))
	}

	return n, err
}

// ReadStream parses a CSV operation stream headed by op,key,value,
// enforcing row and byte caps before returning. op is case-insensitive and
// trimmed; value is required iff op is put.
func ReadStream(r io.Reader, limits Limits) ([]Op, error) {
	cr := &countingReader{r: r, limit: limits.MaxBytes}
	reader := csv.NewReader(bufio.NewReader(cr))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errs.New(errs.KindBadInput, "operation stream is empty, expected header op,key,value")
		}

		return nil, wrapReadErr(err)
	}

	if err := validateHeader(header); err != nil {
		return nil, err
	}

	var ops []Op

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, wrapReadErr(err)
		}

		if limits.MaxRows > 0 && len(ops) >= limits.MaxRows {
			return nil, errs.New(errs.KindBadInput, "operation stream exceeds max_input_rows", errs.Hint("reduce the stream size or raise replay.max_input_rows"))
		}

		op, err := parseRecord(record)
		if err != nil {
			return nil, err
		}

		ops = append(ops, op)
	}

	return ops, nil
}

func wrapReadErr(err error) error {
	var be *errs.Error
	if errors.As(err, &be) {
		return be
	}

	return errs.New(errs.KindBadInput, "malformed operation stream row", errs.Cause(err))
}

func validateHeader(header []string) error {
	if len(header) < 3 {
		return errs.New(errs.KindBadInput, "operation stream header must have columns op,key,value")
	}

	want := []string{"op", "key", "value"}
	for i, w := range want {
		if strings.ToLower(strings.TrimSpace(header[i])) != w {
			return errs.New(errs.KindBadInput, "operation stream header must be exactly op,key,value")
		}
	}

	return nil
}

func parseRecord(record []string) (Op, error) {
	for len(record) < 3 {
		record = append(record, "")
	}

	opStr := strings.ToLower(strings.TrimSpace(record[0]))
	key := strings.TrimSpace(record[1])
	value := record[2]

	var kind OpKind

	switch opStr {
	case "put":
		kind = OpPut
	case "get":
		kind = OpGet
	case "del":
		kind = OpDel
	default:
		return Op{}, errs.Newf(errs.KindBadInput, nil, "unknown op %q, expected put/get/del", opStr)
	}

	if key == "" {
		return Op{}, errs.New(errs.KindBadInput, "row has empty key")
	}

	if kind == OpPut && value == "" {
		return Op{}, errs.New(errs.KindBadInput, "put row missing required value")
	}

	if kind != OpPut && value != "" {
		return Op{}, errs.New(errs.KindBadInput, "get/del row must not carry a value")
	}

	return Op{Kind: kind, Key: key, Value: []byte(value)}, nil
}
