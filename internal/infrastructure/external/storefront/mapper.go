package storefront

import (
	"strconv"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Mapper converts storefront DTOs into domain models.
type Mapper struct{}

// NewMapper creates a new mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ToSnapshot converts a cart DTO into a domain snapshot. Line indexes are
// assigned from payload order, 1-based, matching how the storefront change
// endpoint addresses lines.
func (m *Mapper) ToSnapshot(dto *CartDTO) *cart.Snapshot {
	snap := &cart.Snapshot{
		Subtotal:      shared.Money(dto.TotalPrice),
		ItemCount:     dto.ItemCount,
		Currency:      dto.Currency,
		DiscountCodes: dto.DiscountCodes,
		Attributes:    dto.Attributes,
	}
	snap.Items = make([]cart.LineItem, 0, len(dto.Items))
	for i, item := range dto.Items {
		snap.Items = append(snap.Items, cart.LineItem{
			Index:      i + 1,
			Key:        item.Key,
			VariantID:  shared.VariantID(item.VariantID),
			ProductID:  strconv.FormatInt(item.ProductID, 10),
			Quantity:   item.Quantity,
			UnitPrice:  shared.Money(item.Price),
			LinePrice:  shared.Money(item.LinePrice),
			Title:      item.Title,
			Image:      item.Image,
			Properties: item.Properties,
		})
	}
	return snap
}

// ToAddLineRequest converts an add intent into the storefront payload.
func (m *Mapper) ToAddLineRequest(intent cart.AddLineIntent) addLineRequest {
	return addLineRequest{
		VariantID:  intent.VariantID.Int64(),
		Quantity:   intent.Quantity,
		Properties: intent.Properties,
	}
}

// ToChangeLineRequest converts a change intent into the storefront payload.
func (m *Mapper) ToChangeLineRequest(intent cart.ChangeLineIntent) changeLineRequest {
	return changeLineRequest{
		Line:     intent.LineIndex,
		Quantity: intent.Quantity,
	}
}
