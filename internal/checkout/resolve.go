package checkout

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/pricing"
	"github.com/kedaipet/storefront/internal/upstream"
)

// Checkout modes. A session without a stored selection checks out the full
// cart.
const (
	ModeFullCart = "full_cart"
	ModeSelected = "selected"
	ModeBuyNow   = "buy_now"
)

// resolved is the deterministic item set a checkout session prices and
// submits. The same selection always yields the same lines in cart order.
type resolved struct {
	Mode  string
	Lines []pricing.LineItem
	Items []upstream.CartItem
}

// resolve materialises the session's selection into concrete lines. Selected
// ids that vanished from the cart fail the whole resolution rather than
// silently shrinking the order.
func (s *Service) resolve(ctx context.Context, sid string) (resolved, error) {
	sel, err := s.Sessions.Selection(ctx, sid)
	if err != nil {
		return resolved{}, err
	}

	if sel.Mode == ModeBuyNow {
		if sel.BuyNow == nil || sel.BuyNow.ProductID == "" {
			return resolved{}, common.NewAppError(common.CodeValidation, "buy now selection is missing", http.StatusBadRequest, nil)
		}
		item := upstream.CartItem{
			ProductID:  sel.BuyNow.ProductID,
			UnitPrice:  sel.BuyNow.UnitPrice,
			Qty:        sel.BuyNow.Qty,
			WeightGram: sel.BuyNow.WeightGram,
			Stock:      sel.BuyNow.Stock,
		}
		return resolved{Mode: ModeBuyNow, Lines: toLines([]upstream.CartItem{item}), Items: []upstream.CartItem{item}}, nil
	}

	cart, err := s.API.GetCart(ctx)
	if err != nil {
		return resolved{}, err
	}

	if sel.Mode == ModeSelected {
		if len(sel.ItemIDs) == 0 {
			return resolved{}, common.NewAppError(common.CodeValidation, "no items selected for checkout", http.StatusBadRequest, nil)
		}
		byID := make(map[string]upstream.CartItem, len(cart.Items))
		for _, item := range cart.Items {
			byID[item.ID] = item
		}
		items := make([]upstream.CartItem, 0, len(sel.ItemIDs))
		for _, item := range cart.Items {
			if !containsID(sel.ItemIDs, item.ID) {
				continue
			}
			items = append(items, item)
		}
		for _, id := range sel.ItemIDs {
			if _, ok := byID[id]; !ok {
				return resolved{}, common.NewAppError(common.CodeValidation,
					fmt.Sprintf("selected item %s is no longer in the cart", id), http.StatusConflict, nil)
			}
		}
		return resolved{Mode: ModeSelected, Lines: toLines(items), Items: items}, nil
	}

	if len(cart.Items) == 0 {
		return resolved{}, common.NewAppError(common.CodeValidation, "cart is empty", http.StatusBadRequest, nil)
	}
	return resolved{Mode: ModeFullCart, Lines: toLines(cart.Items), Items: cart.Items}, nil
}

// checkStock gates submission on known availability. Lines without stock
// information pass; the commerce API has the final word either way.
func checkStock(items []upstream.CartItem) error {
	type exceeded struct {
		ProductID string `json:"productId"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	}
	var over []exceeded
	for _, item := range items {
		if item.Stock != nil && item.Qty > *item.Stock {
			over = append(over, exceeded{ProductID: item.ProductID, Requested: item.Qty, Available: *item.Stock})
		}
	}
	if len(over) > 0 {
		err := common.NewAppError(common.CodeStockExceeded, "requested quantity exceeds available stock", http.StatusConflict, nil)
		err.Details = over
		return err
	}
	return nil
}

func toLines(items []upstream.CartItem) []pricing.LineItem {
	lines := make([]pricing.LineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.LineItem{
			ID:         item.ID,
			UnitPrice:  item.UnitPrice,
			Qty:        item.Qty,
			UnitWeight: pricing.Weight(item.WeightGram),
			Stock:      item.Stock,
		})
	}
	return lines
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
