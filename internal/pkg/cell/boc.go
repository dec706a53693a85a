package cell

import (
	"encoding/base64"
	"fmt"

	"github.com/tonkeeper/tongo/boc"
)

// Serialize encodes root as a single-root bag of cells with a CRC32-C
// trailer. Equal trees always produce the same bytes.
func Serialize(root *Cell) ([]byte, error) {
	if root == nil {
		return nil, ErrNilRef
	}
	b, err := boc.SerializeBoc(root.raw, false, true, false, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	return b, nil
}

func ToBase64(root *Cell) (string, error) {
	b, err := Serialize(root)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Parse decodes a bag of cells and returns its roots. Exotic cells are
// rejected.
func Parse(b []byte) (roots []*Cell, err error) {
	defer func() {
		// tongo slices the input before checking every length
		if r := recover(); r != nil {
			roots, err = nil, fmt.Errorf("%w: %v", ErrMalformedContainer, r)
		}
	}()
	raws, err := boc.DeserializeBoc(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: no roots", ErrMalformedContainer)
	}
	seen := map[*boc.Cell]*Cell{}
	roots = make([]*Cell, len(raws))
	for i, raw := range raws {
		if roots[i], err = fromBoc(raw, seen, 0); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

func fromBoc(raw *boc.Cell, seen map[*boc.Cell]*Cell, depth int) (*Cell, error) {
	if c, ok := seen[raw]; ok {
		return c, nil
	}
	if depth > 1024 {
		return nil, fmt.Errorf("%w: tree too deep", ErrMalformedContainer)
	}
	if raw.IsExotic() {
		return nil, fmt.Errorf("%w: exotic cell", ErrMalformedContainer)
	}
	if raw.BitSize() > MaxBits {
		return nil, fmt.Errorf("%w: cell has %d bits", ErrMalformedContainer, raw.BitSize())
	}
	children := raw.Refs()
	refs := make([]*Cell, len(children))
	for i, child := range children {
		r, err := fromBoc(child, seen, depth+1)
		if err != nil {
			return nil, err
		}
		refs[i] = r
	}
	c, err := wrap(raw, refs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	seen[raw] = c
	return c, nil
}

func ParseBase64(s string) ([]*Cell, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b, err = base64.URLEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
		}
	}
	return Parse(b)
}

// ParseOne decodes a container that must hold exactly one root.
func ParseOne(b []byte) (*Cell, error) {
	roots, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("%w: expected one root, got %d", ErrMalformedContainer, len(roots))
	}
	return roots[0], nil
}
