package orders

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID    string          `json:"id" yaml:"id"`
	Name  string          `json:"name" yaml:"name"`
	Price decimal.Decimal `json:"price" yaml:"price"`
}

type Address struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Item struct {
	ProductID string          `json:"product_id"`
	Location  string          `json:"location"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order keeps FinalAmount = TotalAmount - DiscountAmount. The coupon is a
// snapshot of id and code so the order survives coupon deletion.
type Order struct {
	ID              string          `json:"id"`
	ExternalID      string          `json:"external_id,omitempty"`
	UserID          string          `json:"user_id"`
	Items           []Item          `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CouponID        string          `json:"coupon_id,omitempty"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
	Status          Status          `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress Address         `json:"shipping_address"`
	BillingAddress  Address         `json:"billing_address"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (o *Order) clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Location  string `json:"location,omitempty"`
	Qty       int    `json:"qty"`
}

type CreateOrderRequest struct {
	ExternalID      string      `json:"external_id,omitempty"`
	UserID          string      `json:"user_id"`
	Items           []ItemInput `json:"items"`
	CouponCode      string      `json:"coupon_code,omitempty"`
	PaymentMethod   string      `json:"payment_method"`
	ShippingAddress Address     `json:"shipping_address"`
	BillingAddress  *Address    `json:"billing_address,omitempty"`
}

func (r CreateOrderRequest) validate() error {
	var problems []string
	if strings.TrimSpace(r.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if len(r.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			problems = append(problems, "items["+strconv.Itoa(i)+"].product_id is required")
		}
		if it.Qty <= 0 {
			problems = append(problems, "items["+strconv.Itoa(i)+"].qty must be positive")
		}
	}
	if strings.TrimSpace(r.PaymentMethod) == "" {
		problems = append(problems, "payment_method is required")
	}
	if r.ShippingAddress.Line1 == "" || r.ShippingAddress.City == "" {
		problems = append(problems, "shipping_address needs line1 and city")
	}
	if len(problems) > 0 {
		return errors.Wrap(ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
