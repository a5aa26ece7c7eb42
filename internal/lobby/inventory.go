package lobby

import "github.com/cory-johannsen/rushlobby/internal/catalog"

// Aggregates are derived numeric totals keyed by attribute name.
type Aggregates map[string]float64

// BoxItem is a stack of one catalog item inside a box.
type BoxItem struct {
	Type     catalog.ItemType `json:"type"`
	Name     string           `json:"name"`
	Quantity int              `json:"quantity"`
	Totals   Aggregates       `json:"totals"`

	def *catalog.Item
}

// Def returns the catalog definition the item was built from.
func (i *BoxItem) Def() *catalog.Item { return i.def }

// Box is a container of items. A player has at most one open box (the
// rucksack) and any number of closed boxes.
type Box struct {
	Index  int        `json:"index"`
	Items  []*BoxItem `json:"items"`
	Totals Aggregates `json:"totals"`
}

// Reducer derives item and box aggregates. Implementations must be pure: the
// same inputs always produce the same totals.
type Reducer interface {
	ReduceItem(def *catalog.Item, quantity int) (Aggregates, error)
	ReduceBox(items []*BoxItem) (Aggregates, error)
}

// SumReducer multiplies each item attribute by the quantity and sums item
// totals into the box.
type SumReducer struct{}

// ReduceItem implements Reducer.
func (SumReducer) ReduceItem(def *catalog.Item, quantity int) (Aggregates, error) {
	out := make(Aggregates, len(def.Attributes))
	for k, v := range def.Attributes {
		out[k] = v * float64(quantity)
	}
	return out, nil
}

// ReduceBox implements Reducer.
func (SumReducer) ReduceBox(items []*BoxItem) (Aggregates, error) {
	out := make(Aggregates)
	for _, it := range items {
		for k, v := range it.Totals {
			out[k] += v
		}
	}
	return out, nil
}

// BoxItemProps are the optional properties of a box item update.
type BoxItemProps struct {
	Quantity *int `json:"quantity,omitempty"`
}

// AddBoxItem appends one unit of the catalog item (typ, itemName) to the
// player's rucksack, opening a rucksack when none is open.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns the new item, or playerNotFound / itemNotFound or a
// reducer failure with state unchanged.
func (s *Session) AddBoxItem(playerName string, typ catalog.ItemType, itemName string) (*BoxItem, error) {
	p, _, ok := s.FindPlayer(playerName)
	if !ok {
		return nil, errPlayerNotFound(playerName)
	}
	var def *catalog.Item
	if s.Settings != nil {
		def, ok = s.Settings.Item(typ, itemName)
	}
	if !ok || def == nil {
		return nil, NewError(CodeItemNotFound, map[string]any{"itemType": typ, "itemName": itemName})
	}

	item := &BoxItem{Type: typ, Name: itemName, Quantity: 1, def: def}
	totals, err := s.reducer.ReduceItem(def, item.Quantity)
	if err != nil {
		return nil, err
	}
	item.Totals = totals

	box := p.Rucksack
	if box == nil {
		box = &Box{Index: len(p.Boxes) + 1}
	}
	items := append(box.Items[:len(box.Items):len(box.Items)], item)
	boxTotals, err := s.reducer.ReduceBox(items)
	if err != nil {
		return nil, err
	}

	box.Items = items
	box.Totals = boxTotals
	p.Rucksack = box
	return item, nil
}

// UpdateBoxItemProps applies props to the first rucksack item named itemName
// and recomputes the item and rucksack aggregates. A nil quantity leaves the
// item unchanged.
//
// Precondition: caller holds the session lock.
// Postcondition: Returns invalidPayload for a non-positive quantity,
// playerNotFound, boxNotFound, boxItemNotFound or a reducer failure with
// state unchanged.
func (s *Session) UpdateBoxItemProps(playerName, itemName string, props BoxItemProps) error {
	if props.Quantity != nil && *props.Quantity <= 0 {
		return NewError(CodeInvalidPayload, map[string]any{"field": "quantity", "quantity": *props.Quantity})
	}
	p, _, ok := s.FindPlayer(playerName)
	if !ok {
		return errPlayerNotFound(playerName)
	}
	box := p.Rucksack
	if box == nil {
		return NewError(CodeBoxNotFound, map[string]any{"playerName": playerName})
	}
	idx := -1
	for i, it := range box.Items {
		if it.Name == itemName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return NewError(CodeBoxItemNotFound, map[string]any{"playerName": playerName, "itemName": itemName})
	}
	if props.Quantity == nil {
		return nil
	}

	updated := *box.Items[idx]
	updated.Quantity = *props.Quantity
	totals, err := s.reducer.ReduceItem(updated.def, updated.Quantity)
	if err != nil {
		return err
	}
	updated.Totals = totals

	items := make([]*BoxItem, len(box.Items))
	copy(items, box.Items)
	items[idx] = &updated
	boxTotals, err := s.reducer.ReduceBox(items)
	if err != nil {
		return err
	}

	*box.Items[idx] = updated
	box.Totals = boxTotals
	return nil
}

// MoveToBox closes the player's rucksack into its list of boxes.
//
// Precondition: caller holds the session lock.
// Postcondition: Rucksack is nil and the closed box is last in Boxes, or
// playerNotFound / boxNotFound is returned.
func (s *Session) MoveToBox(playerName string) (*Box, error) {
	p, _, ok := s.FindPlayer(playerName)
	if !ok {
		return nil, errPlayerNotFound(playerName)
	}
	if p.Rucksack == nil {
		return nil, NewError(CodeBoxNotFound, map[string]any{"playerName": playerName})
	}
	box := p.Rucksack
	p.Boxes = append(p.Boxes, box)
	p.Rucksack = nil
	return box, nil
}
