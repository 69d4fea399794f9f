package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/obs"
	"github.com/kedaipet/storefront/internal/payment"
	"github.com/kedaipet/storefront/internal/pricing"
	"github.com/kedaipet/storefront/internal/session"
	"github.com/kedaipet/storefront/internal/upstream"
)

// ShippingForm is the delivery detail payload submitted with an order.
// Postcodes are Malaysian five-digit codes.
type ShippingForm struct {
	ReceiverName string `json:"receiverName" validate:"required,min=2,max=100"`
	Phone        string `json:"phone" validate:"required,min=7,max=20"`
	AddressLine1 string `json:"addressLine1" validate:"required,min=5,max=200"`
	AddressLine2 string `json:"addressLine2" validate:"omitempty,max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	Postcode     string `json:"postcode" validate:"required,len=5,numeric"`
	Email        string `json:"email" validate:"omitempty,email"`
	Notes        string `json:"notes" validate:"omitempty,max=500"`
	AgreePolicy  bool   `json:"agreePolicy" validate:"eq=true"`
}

// Summary is the priced view of the current checkout session.
type Summary struct {
	Mode     string                   `json:"mode"`
	Items    []upstream.CartItem      `json:"items"`
	Vouchers []pricing.AppliedVoucher `json:"vouchers"`
	Quote    pricing.Quote            `json:"quote"`
}

// SubmitResult is the created order plus where to send the customer to pay.
type SubmitResult struct {
	Order   upstream.Order           `json:"order"`
	Payment payment.CheckoutRedirect `json:"payment"`
}

// Service drives the checkout flow: selection capture, quoting and order
// submission. Durable writes go to the commerce API; everything else lives in
// the session.
type Service struct {
	API       *upstream.Client
	Sessions  *session.Store
	Validate  *validator.Validate
	Payments  payment.Provider
	R         *redis.Client
	Logger    zerolog.Logger
	SubmitTTL time.Duration
}

func submitKey(sid string) string { return "checkout:submit:" + sid }

func (s *Service) submitTTL() time.Duration {
	if s == nil || s.SubmitTTL <= 0 {
		return 30 * time.Second
	}
	return s.SubmitTTL
}

// CheckoutLines resolves the session's selection into priceable lines. Also
// consumed by voucher validation so discounts are checked against the real
// subtotal.
func (s *Service) CheckoutLines(ctx context.Context, sid string) ([]pricing.LineItem, error) {
	res, err := s.resolve(ctx, sid)
	if err != nil {
		return nil, err
	}
	return res.Lines, nil
}

// Quote prices the current selection with the applied vouchers.
func (s *Service) Quote(ctx context.Context, sid string) (Summary, error) {
	if s == nil || s.API == nil || s.Sessions == nil {
		return Summary{}, errors.New("checkout service not configured")
	}
	res, err := s.resolve(ctx, sid)
	if err != nil {
		return Summary{}, err
	}
	set, err := s.Sessions.Vouchers(ctx, sid)
	if err != nil {
		return Summary{}, err
	}
	obs.QuoteComputeTotal.Inc()
	return Summary{
		Mode:     res.Mode,
		Items:    res.Items,
		Vouchers: set.Vouchers,
		Quote:    pricing.Compute(res.Lines, set.Vouchers),
	}, nil
}

// SetSelection records which cart lines the next checkout covers.
func (s *Service) SetSelection(ctx context.Context, sid, mode string, itemIDs []string) error {
	if s == nil || s.Sessions == nil {
		return errors.New("checkout service not configured")
	}
	switch mode {
	case ModeFullCart:
		return s.Sessions.SaveSelection(ctx, sid, session.Selection{Mode: ModeFullCart})
	case ModeSelected:
		if len(itemIDs) == 0 {
			return common.NewAppError(common.CodeValidation, "select at least one item", http.StatusBadRequest, nil)
		}
		return s.Sessions.SaveSelection(ctx, sid, session.Selection{Mode: ModeSelected, ItemIDs: itemIDs})
	default:
		return common.NewAppError(common.CodeValidation, "unknown checkout mode", http.StatusBadRequest, nil)
	}
}

// BuyNow starts a checkout for a single product without touching the cart.
// The product snapshot is taken here so the quote stays stable even if the
// catalog price changes mid-checkout.
func (s *Service) BuyNow(ctx context.Context, sid, productID string, qty int) error {
	if s == nil || s.API == nil || s.Sessions == nil {
		return errors.New("checkout service not configured")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return common.NewAppError(common.CodeValidation, "product id is required", http.StatusBadRequest, nil)
	}
	if qty < 1 {
		return common.NewAppError(common.CodeValidation, "quantity must be at least 1", http.StatusBadRequest, nil)
	}
	product, err := s.API.Product(ctx, productID)
	if err != nil {
		return err
	}
	return s.Sessions.SaveSelection(ctx, sid, session.Selection{
		Mode: ModeBuyNow,
		BuyNow: &session.BuyNowItem{
			ProductID:  product.ID,
			Qty:        qty,
			UnitPrice:  product.Price,
			WeightGram: product.WeightGram,
			Stock:      product.Stock,
		},
	})
}

// SetGuestEmail stores the guest's contact email for voucher validation and
// order confirmation lookup.
func (s *Service) SetGuestEmail(ctx context.Context, sid, email string) error {
	if s == nil || s.Sessions == nil {
		return errors.New("checkout service not configured")
	}
	email = strings.TrimSpace(email)
	if s.Validate != nil {
		if err := s.Validate.Var(email, "required,email"); err != nil {
			return common.NewAppError(common.CodeValidation, "a valid email is required", http.StatusBadRequest, err)
		}
	}
	return s.Sessions.SetGuestEmail(ctx, sid, email)
}

// Submit validates the shipping form, prices the selection one final time and
// creates the order upstream, then opens the payment. Concurrent submissions
// for the same session are rejected.
func (s *Service) Submit(ctx context.Context, sid string, form ShippingForm) (SubmitResult, error) {
	if s == nil || s.API == nil || s.Sessions == nil || s.Payments == nil {
		return SubmitResult{}, errors.New("checkout service not configured")
	}

	if s.R != nil {
		acquired, err := s.R.SetNX(ctx, submitKey(sid), "1", s.submitTTL()).Result()
		if err != nil {
			return SubmitResult{}, err
		}
		if !acquired {
			return SubmitResult{}, common.NewAppError(common.CodeValidation, "order submission already in progress", http.StatusConflict, nil)
		}
		defer func() { _ = s.R.Del(context.WithoutCancel(ctx), submitKey(sid)).Err() }()
	}

	if err := s.validateForm(ctx, sid, &form); err != nil {
		return SubmitResult{}, err
	}

	res, err := s.resolve(ctx, sid)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := checkStock(res.Items); err != nil {
		return SubmitResult{}, err
	}

	set, err := s.Sessions.Vouchers(ctx, sid)
	if err != nil {
		return SubmitResult{}, err
	}
	quote := pricing.Compute(res.Lines, set.Vouchers)
	obs.QuoteComputeTotal.Inc()

	_, authenticated := common.UserID(ctx)
	req := orderRequest(form, res, set.Vouchers, quote)

	order, err := s.API.CreateOrder(ctx, req, authenticated)
	if err != nil {
		return SubmitResult{}, err
	}

	amount := order.Total
	if amount <= 0 {
		amount = quote.Total
	}
	redirect, err := s.Payments.CreateCheckout(ctx, payment.CheckoutRequest{
		OrderID:     order.ID,
		Amount:      amount,
		Email:       form.Email,
		Description: "Kedai Pet order " + order.ID,
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("orderId", order.ID).Msg("open payment")
		return SubmitResult{}, common.NewAppError(common.CodePaymentFailed, "could not start payment", http.StatusBadGateway, err)
	}

	// The selection and vouchers stay in the session until the payment
	// resolves: a failed attempt must be retryable with the same set.
	if err := s.Sessions.SavePendingPayment(ctx, sid, session.PendingPayment{
		OrderID: order.ID,
		Amount:  amount,
		Params:  redirect.Params,
	}); err != nil {
		return SubmitResult{}, err
	}

	obs.OrdersSubmitted.WithLabelValues(res.Mode).Inc()
	s.Logger.Info().
		Str("orderId", order.ID).
		Str("mode", res.Mode).
		Int64("total", int64(amount)).
		Bool("guest", !authenticated).
		Msg("order submitted")

	return SubmitResult{Order: order, Payment: redirect}, nil
}

func (s *Service) validateForm(ctx context.Context, sid string, form *ShippingForm) error {
	if s.Validate != nil {
		if err := s.Validate.Struct(form); err != nil {
			return validationError(err)
		}
	}
	if _, authenticated := common.UserID(ctx); authenticated {
		return nil
	}
	if form.Email == "" {
		stored, err := s.Sessions.GuestEmail(ctx, sid)
		if err != nil {
			return err
		}
		form.Email = stored
	}
	if form.Email == "" {
		return common.NewAppError(common.CodeValidation, "email is required for guest checkout", http.StatusBadRequest, nil)
	}
	return nil
}

func orderRequest(form ShippingForm, res resolved, vouchers []pricing.AppliedVoucher, quote pricing.Quote) upstream.OrderRequest {
	req := upstream.OrderRequest{
		ReceiverName: form.ReceiverName,
		Phone:        form.Phone,
		AddressLine1: form.AddressLine1,
		AddressLine2: form.AddressLine2,
		City:         form.City,
		State:        form.State,
		Postcode:     form.Postcode,
		Email:        form.Email,
		DeliveryFee:  quote.Shipping,
		Notes:        form.Notes,
	}
	for _, v := range vouchers {
		req.VoucherCodes = append(req.VoucherCodes, v.Code)
	}
	if res.Mode == ModeBuyNow {
		for _, item := range res.Items {
			req.Items = append(req.Items, upstream.OrderItem{ProductID: item.ProductID, Qty: item.Qty, UnitPrice: item.UnitPrice})
		}
		return req
	}
	for _, item := range res.Items {
		req.ItemIDs = append(req.ItemIDs, item.ID)
	}
	return req
}

// validationError flattens validator output into the canonical error shape.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		appErr := common.NewAppError(common.CodeValidation, "shipping details are invalid", http.StatusBadRequest, err)
		appErr.Details = details
		return appErr
	}
	return common.NewAppError(common.CodeValidation, "shipping details are invalid", http.StatusBadRequest, err)
}
