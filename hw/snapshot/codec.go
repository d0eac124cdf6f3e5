package snapshot

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// A snapshot is a JSON array: a magic string, the schema version, then every
// field of the schema for that version in order. Fields carry no names on
// the wire, their position is defined by the schema.

var (
	ErrFormat    = errors.New("snapshot: bad format")
	ErrVersion   = errors.New("snapshot: unsupported version")
	ErrTruncated = errors.New("snapshot: truncated")
	ErrTrailing  = errors.New("snapshot: trailing data")
)

const (
	ciaMagic     = "cia"
	machineMagic = "machine"
)

type field[T any] struct {
	name  string
	since int // first version carrying the field
	enc   func(e *jx.Encoder, s *T)
	dec   func(d *jx.Decoder, s *T) error
}

// fieldsFor returns the ordered fields present in a given version.
func fieldsFor[T any](schema []field[T], version int) []field[T] {
	var fields []field[T]
	for _, f := range schema {
		if f.since <= version {
			fields = append(fields, f)
		}
	}
	return fields
}

func u8[T any](name string, since int, p func(*T) *uint8) field[T] {
	return field[T]{
		name:  name,
		since: since,
		enc:   func(e *jx.Encoder, s *T) { e.UInt8(*p(s)) },
		dec: func(d *jx.Decoder, s *T) (err error) {
			*p(s), err = d.UInt8()
			return err
		},
	}
}

func u16[T any](name string, since int, p func(*T) *uint16) field[T] {
	return field[T]{
		name:  name,
		since: since,
		enc:   func(e *jx.Encoder, s *T) { e.UInt16(*p(s)) },
		dec: func(d *jx.Decoder, s *T) (err error) {
			*p(s), err = d.UInt16()
			return err
		},
	}
}

func u32[T any](name string, since int, p func(*T) *uint32) field[T] {
	return field[T]{
		name:  name,
		since: since,
		enc:   func(e *jx.Encoder, s *T) { e.UInt32(*p(s)) },
		dec: func(d *jx.Decoder, s *T) (err error) {
			*p(s), err = d.UInt32()
			return err
		},
	}
}

func i64[T any](name string, since int, p func(*T) *int64) field[T] {
	return field[T]{
		name:  name,
		since: since,
		enc:   func(e *jx.Encoder, s *T) { e.Int64(*p(s)) },
		dec: func(d *jx.Decoder, s *T) (err error) {
			*p(s), err = d.Int64()
			return err
		},
	}
}

func flag[T any](name string, since int, p func(*T) *bool) field[T] {
	return field[T]{
		name:  name,
		since: since,
		enc:   func(e *jx.Encoder, s *T) { e.Bool(*p(s)) },
		dec: func(d *jx.Decoder, s *T) (err error) {
			*p(s), err = d.Bool()
			return err
		},
	}
}

// u8s encodes a fixed-size byte array as a nested array of numbers.
func u8s[T any](name string, since int, p func(*T) []uint8) field[T] {
	return field[T]{
		name:  name,
		since: since,
		enc: func(e *jx.Encoder, s *T) {
			e.ArrStart()
			for _, b := range p(s) {
				e.UInt8(b)
			}
			e.ArrEnd()
		},
		dec: func(d *jx.Decoder, s *T) error {
			buf := p(s)
			i := 0
			err := d.Arr(func(d *jx.Decoder) error {
				if i >= len(buf) {
					return ErrTrailing
				}
				b, err := d.UInt8()
				buf[i] = b
				i++
				return err
			})
			if err != nil {
				return err
			}
			if i != len(buf) {
				return ErrTruncated
			}
			return nil
		},
	}
}

// nest lifts the schema of an embedded struct into the schema of its parent.
func nest[T, U any](prefix string, get func(*T) *U, schema []field[U]) []field[T] {
	fields := make([]field[T], len(schema))
	for i, f := range schema {
		fields[i] = field[T]{
			name:  prefix + "." + f.name,
			since: f.since,
			enc:   func(e *jx.Encoder, s *T) { f.enc(e, get(s)) },
			dec:   func(d *jx.Decoder, s *T) error { return f.dec(d, get(s)) },
		}
	}
	return fields
}

func encode[T any](e *jx.Encoder, magic string, version int, s *T, schema []field[T]) {
	e.ArrStart()
	e.Str(magic)
	e.Int(version)
	for _, f := range fieldsFor(schema, version) {
		f.enc(e, s)
	}
	e.ArrEnd()
}

// decode reads one snapshot array. The whole array is decoded before the
// result is returned, so that a caller never sees a partially filled value.
func decode[T any](d *jx.Decoder, magic string, schema []field[T]) (*T, int, error) {
	var (
		s       T
		idx     int
		version int
		fields  []field[T]
	)

	err := d.Arr(func(d *jx.Decoder) error {
		defer func() { idx++ }()
		switch idx {
		case 0:
			m, err := d.Str()
			if err != nil {
				return err
			}
			if m != magic {
				return errors.Wrapf(ErrFormat, "magic %q, want %q", m, magic)
			}
		case 1:
			v, err := d.Int()
			if err != nil {
				return err
			}
			if v < 1 || v > Version {
				return errors.Wrapf(ErrVersion, "%s version %d", magic, v)
			}
			version = v
			fields = fieldsFor(schema, v)
		default:
			i := idx - 2
			if i >= len(fields) {
				return ErrTrailing
			}
			if err := fields[i].dec(d, &s); err != nil {
				return errors.Wrapf(err, "field %s", fields[i].name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, classify(err)
	}
	if idx < 2 || idx-2 < len(fields) {
		return nil, 0, ErrTruncated
	}
	return &s, version, nil
}

// classify maps decoder errors onto the package errors.
func classify(err error) error {
	for _, sentinel := range []error{ErrFormat, ErrVersion, ErrTruncated, ErrTrailing} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return errors.Wrap(ErrTruncated, err.Error())
	}
	return errors.Wrap(ErrFormat, err.Error())
}

func decodeAll[T any](r io.Reader, read func(d *jx.Decoder) (*T, error)) (*T, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot: read")
	}
	if len(buf) == 0 {
		return nil, ErrTruncated
	}
	d := jx.DecodeBytes(buf)
	s, err := read(d)
	if err != nil {
		return nil, err
	}
	if d.Next() != jx.Invalid {
		return nil, ErrTrailing
	}
	return s, nil
}

func write(w io.Writer, e *jx.Encoder) error {
	if _, err := w.Write(e.Bytes()); err != nil {
		return errors.Wrap(err, "snapshot: write")
	}
	return nil
}

func encodeCIA(e *jx.Encoder, s *CIA) {
	encode(e, ciaMagic, Version, s, ciaSchema)
}

func decodeCIA(d *jx.Decoder) (*CIA, error) {
	s, version, err := decode(d, ciaMagic, ciaSchema)
	if err != nil {
		return nil, err
	}
	s.Version = version
	return s, nil
}

// EncodeCIA writes the snapshot of one chip.
func EncodeCIA(w io.Writer, s *CIA) error {
	var e jx.Encoder
	encodeCIA(&e, s)
	return write(w, &e)
}

// DecodeCIA reads the snapshot of one chip. Fields missing from older
// versions are left to their zero value.
func DecodeCIA(r io.Reader) (*CIA, error) {
	return decodeAll(r, decodeCIA)
}

// EncodeMachine writes the snapshot of a machine and its chips.
func EncodeMachine(w io.Writer, m *Machine) error {
	var e jx.Encoder
	encode(&e, machineMagic, Version, m, machineSchema)
	return write(w, &e)
}

func DecodeMachine(r io.Reader) (*Machine, error) {
	return decodeAll(r, func(d *jx.Decoder) (*Machine, error) {
		m, version, err := decode(d, machineMagic, machineSchema)
		if err != nil {
			return nil, err
		}
		m.Version = version
		return m, nil
	})
}
