package storefront

// ══════════════════════════════════════════════════════════════════════════════
// CART DTOs
// ══════════════════════════════════════════════════════════════════════════════

// CartDTO mirrors the storefront cart payload. Prices arrive as integer
// minor units, which matches how the engine represents money internally.
type CartDTO struct {
	Token         string            `json:"token"`
	Currency      string            `json:"currency"`
	ItemCount     int               `json:"item_count"`
	TotalPrice    int64             `json:"total_price"`
	Items         []LineItemDTO     `json:"items"`
	DiscountCodes []string          `json:"discount_codes,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// LineItemDTO mirrors a single cart line in the storefront payload.
type LineItemDTO struct {
	Key        string            `json:"key"`
	VariantID  int64             `json:"variant_id"`
	ProductID  int64             `json:"product_id"`
	Quantity   int               `json:"quantity"`
	Price      int64             `json:"price"`
	LinePrice  int64             `json:"line_price"`
	Title      string            `json:"title"`
	Image      string            `json:"image,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// addLineRequest is the payload for the cart add endpoint.
type addLineRequest struct {
	VariantID  int64             `json:"id"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

// changeLineRequest is the payload for the cart change endpoint.
// Line is the 1-based line index; quantity zero removes the line.
type changeLineRequest struct {
	Line     int `json:"line"`
	Quantity int `json:"quantity"`
}

// errorResponse is the storefront error envelope.
type errorResponse struct {
	Status      int    `json:"status"`
	Message     string `json:"message"`
	Description string `json:"description"`
}
