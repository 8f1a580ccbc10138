package types

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Comparable é a interface que todas as chaves devem implementar
type Comparable interface {
	Compare(other Comparable) int // Retorna -1 se <, 0 se ==, 1 se >
}

// === Implementações de Chave ===

// IntKey: Chave de Inteiro
type IntKey int

func (k IntKey) Compare(other Comparable) int {
	o := other.(IntKey)
	if k < o {
		return -1
	}
	if k > o {
		return 1
	}
	return 0
}

// VarcharKey: Chave de String
type VarcharKey string

func (k VarcharKey) Compare(other Comparable) int {
	o := other.(VarcharKey)
	if k < o {
		return -1
	}
	if k > o {
		return 1
	}
	return 0
}

// FloatKey: Chave de Float
type FloatKey float64

func (k FloatKey) Compare(other Comparable) int {
	o := other.(FloatKey)
	if k < o {
		return -1
	}
	if k > o {
		return 1
	}
	return 0
}

// BoolKey: Chave Booleana (false < true)
type BoolKey bool

func (k BoolKey) Compare(other Comparable) int {
	o := other.(BoolKey)
	if k == o {
		return 0
	}
	if !k && o {
		return -1
	}
	return 1
}

// DateKey: Chave de Data/Hora
type DateKey time.Time

func (k DateKey) Compare(other Comparable) int {
	o := time.Time(other.(DateKey))
	t := time.Time(k)
	if t.Before(o) {
		return -1
	}
	if t.After(o) {
		return 1
	}
	return 0
}

func (k DateKey) String() string {
	return time.Time(k).Format("2006-01-02 15:04:05")
}

func (k IntKey) String() string     { return fmt.Sprintf("%d", k) }
func (k VarcharKey) String() string { return string(k) }
func (k FloatKey) String() string   { return fmt.Sprintf("%f", k) }
func (k BoolKey) String() string    { return fmt.Sprintf("%t", bool(k)) }

// Decimal is a fixed-point value: Unscaled * 10^-Scale. Two decimals with
// different scale are compared after aligning to the larger scale so that
// 1.50 and 1.5 sort equal.
type Decimal struct {
	Unscaled int64
	Scale    uint8
}

func (d Decimal) aligned(scale uint8) int64 {
	for d.Scale < scale {
		d.Unscaled *= 10
		d.Scale++
	}
	for scale < d.Scale {
		scale++
	}
	return d.Unscaled
}

// DecimalKey: exact fixed-point key, avoids float rounding for currency-like columns
type DecimalKey Decimal

func (k DecimalKey) Compare(other Comparable) int {
	o := other.(DecimalKey)
	scale := k.Scale
	if o.Scale > scale {
		scale = o.Scale
	}
	a := Decimal(k).aligned(scale)
	b := Decimal(o).aligned(scale)
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func (k DecimalKey) String() string {
	sign := ""
	u := k.Unscaled
	if u < 0 {
		sign = "-"
		u = -u
	}
	if k.Scale == 0 {
		return fmt.Sprintf("%s%d", sign, u)
	}
	div := int64(1)
	for i := uint8(0); i < k.Scale; i++ {
		div *= 10
	}
	return fmt.Sprintf("%s%d.%0*d", sign, u/div, k.Scale, u%div)
}

// BlobKey: opaque byte-string key, compared lexicographically
type BlobKey []byte

func (k BlobKey) Compare(other Comparable) int {
	o := other.(BlobKey)
	return bytes.Compare(k, o)
}

func (k BlobKey) String() string { return fmt.Sprintf("%x", []byte(k)) }

// ULIDKey: 26-character Crockford base32 ULID, lexicographically sortable
// by construction (timestamp prefix), compared as plain strings.
type ULIDKey string

func (k ULIDKey) Compare(other Comparable) int {
	o := other.(ULIDKey)
	if k < o {
		return -1
	}
	if k > o {
		return 1
	}
	return 0
}

func (k ULIDKey) String() string { return string(k) }

// GUIDKey: RFC 4122 UUID key, compared byte-for-byte (not numerically)
type GUIDKey uuid.UUID

func (k GUIDKey) Compare(other Comparable) int {
	o := other.(GUIDKey)
	return bytes.Compare(k[:], o[:])
}

func (k GUIDKey) String() string { return uuid.UUID(k).String() }
