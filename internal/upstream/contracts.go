package upstream

import "github.com/kedaipet/storefront/internal/pricing"

// Product is a catalog product as returned by the commerce API. Prices are in
// sen, weights in grams.
type Product struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Price       pricing.Money `json:"price"`
	WeightGram  int           `json:"weight_gram"`
	Stock       *int          `json:"stock"`
	Category    string        `json:"category,omitempty"`
	PetType     string        `json:"pet_type,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
}

// ProductQuery captures catalog listing filters passed through to the API.
type ProductQuery struct {
	Category string
	PetType  string
	Search   string
	Page     int
	Limit    int
}

// ProductList is a paginated product listing.
type ProductList struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
}

// Category is a product category entry.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CartItem is a server-side cart line. Stock is nil when the API did not
// report availability.
type CartItem struct {
	ID         string        `json:"id"`
	ProductID  string        `json:"product_id"`
	Name       string        `json:"name"`
	UnitPrice  pricing.Money `json:"unit_price"`
	Qty        int           `json:"quantity"`
	WeightGram int           `json:"weight_gram"`
	Stock      *int          `json:"stock"`
	ImageURL   string        `json:"image_url,omitempty"`
}

// Cart is the full server-side cart snapshot.
type Cart struct {
	Items     []CartItem    `json:"items"`
	Total     pricing.Money `json:"total"`
	ItemCount int           `json:"item_count"`
}

// VoucherValidateRequest is the payload for voucher validation.
type VoucherValidateRequest struct {
	Code     string        `json:"code"`
	Subtotal pricing.Money `json:"subtotal"`
	Email    string        `json:"email,omitempty"`
}

// VoucherValidateResponse carries the validated voucher and the
// server-calculated discount amount.
type VoucherValidateResponse struct {
	Voucher struct {
		Code           string `json:"code"`
		DiscountType   string `json:"discount_type"`
		DiscountAmount int64  `json:"discount_amount"`
	} `json:"voucher"`
	CalculatedDiscount pricing.Money `json:"calculated_discount"`
}

// OrderItem is a transient order line for buy-now submissions.
type OrderItem struct {
	ProductID string        `json:"product_id"`
	Qty       int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unit_price"`
}

// OrderRequest is the order creation payload. Either ItemIDs (cart checkout)
// or Items (buy-now) is populated, never both.
type OrderRequest struct {
	ReceiverName string        `json:"receiver_name"`
	Phone        string        `json:"phone"`
	AddressLine1 string        `json:"address_line1"`
	AddressLine2 string        `json:"address_line2,omitempty"`
	City         string        `json:"city"`
	State        string        `json:"state"`
	Postcode     string        `json:"postcode"`
	Email        string        `json:"email,omitempty"`
	ItemIDs      []string      `json:"item_ids,omitempty"`
	Items        []OrderItem   `json:"items,omitempty"`
	VoucherCodes []string      `json:"voucher_codes,omitempty"`
	DeliveryFee  pricing.Money `json:"delivery_fee"`
	Notes        string        `json:"notes,omitempty"`
}

// Order is the created or retrieved order.
type Order struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Subtotal    pricing.Money `json:"subtotal"`
	Discount    pricing.Money `json:"discount"`
	DeliveryFee pricing.Money `json:"delivery_fee"`
	Total       pricing.Money `json:"total"`
	Items       []CartItem    `json:"items"`
	CreatedAt   string        `json:"created_at"`
}

// Address is a saved shipping address for an authenticated customer.
type Address struct {
	ID           string `json:"id"`
	ReceiverName string `json:"receiver_name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Postcode     string `json:"postcode"`
	IsDefault    bool   `json:"is_default"`
}

// WishlistItem is a wishlist entry joined with its product.
type WishlistItem struct {
	ProductID string  `json:"product_id"`
	Product   Product `json:"product"`
	AddedAt   string  `json:"added_at"`
}
