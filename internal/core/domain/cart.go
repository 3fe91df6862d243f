package domain

import "time"

type CartLine struct {
	ProductID string
	Quantity  int
	UnitPrice int64 // price snapshot taken when the line was first added
	AddedAt   time.Time
}

func (l CartLine) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

type Cart struct {
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// Total is computed on every call and never stored.
func (c Cart) Total() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Clone returns a copy that shares no memory with c.
func (c Cart) Clone() Cart {
	out := c
	out.Lines = append([]CartLine(nil), c.Lines...)
	return out
}
