package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/storage"
)

// Button labels the flows react to. The transport layer renders them as reply
// keyboards; the machines only match text.
const (
	ButtonPriceRUB = "💵 Price in RUB"
)

// CatalogAdmin is the mutation surface the admin flows drive.
type CatalogAdmin interface {
	CreateCategory(ctx context.Context, name string) (int64, error)
	CreateProduct(ctx context.Context, p storage.CreateProductParams) (int64, error)
	AddStock(ctx context.Context, productID int64, location string, qty int) error
	UpdateAbout(ctx context.Context, text string) error
}

// AddCategory collects a single category name.
type AddCategory struct {
	svc CatalogAdmin
}

// NewAddCategory builds the add-category machine.
func NewAddCategory(svc CatalogAdmin) *AddCategory {
	return &AddCategory{svc: svc}
}

const StepCategoryName Step = "category_name"

func (m *AddCategory) Name() string { return "admin_add_category" }

func (m *AddCategory) Begin(ctx context.Context, seed Fields) (Result, error) {
	return Result{
		Next:   StepCategoryName,
		Fields: seed.Clone(),
		Output: Output{Text: "Send the new category name."},
	}, nil
}

func (m *AddCategory) Transition(ctx context.Context, step Step, fields Fields, in Input) (Result, error) {
	if step != StepCategoryName {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "known step"}
	}
	if _, err := m.svc.CreateCategory(ctx, in.Text); err != nil {
		return Result{}, err
	}
	return Result{
		Next:   StepDone,
		Fields: fields.Clone(),
		Output: Output{Text: fmt.Sprintf("✅ Category %q created.", strings.TrimSpace(in.Text))},
	}, nil
}

// AddProduct walks the admin through a product draft: name, description,
// price (BTC directly or fiat), deliverable content, then per-location stock.
// Nothing touches the catalog until the final step commits the draft.
type AddProduct struct {
	svc CatalogAdmin
}

// NewAddProduct builds the add-product machine.
func NewAddProduct(svc CatalogAdmin) *AddProduct {
	return &AddProduct{svc: svc}
}

const (
	StepProductName        Step = "product_name"
	StepProductDescription Step = "product_description"
	StepProductPrice       Step = "product_price"
	StepProductPriceRUB    Step = "product_price_rub"
	StepProductContent     Step = "product_content"
	StepProductLocations   Step = "product_locations"
)

func (m *AddProduct) Name() string { return "admin_add_product" }

func (m *AddProduct) Begin(ctx context.Context, seed Fields) (Result, error) {
	if _, ok := seed.Int64("category_id"); !ok {
		return Result{}, &domain.FatalStateError{Step: "begin", Missing: "category_id"}
	}
	return Result{
		Next:   StepProductName,
		Fields: seed.Clone(),
		Output: Output{Text: "Send the product name."},
	}, nil
}

func (m *AddProduct) Transition(ctx context.Context, step Step, fields Fields, in Input) (Result, error) {
	f := fields.Clone()
	text := strings.TrimSpace(in.Text)

	switch step {
	case StepProductName:
		if text == "" {
			return Result{}, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
		}
		f["name"] = text
		return Result{Next: StepProductDescription, Fields: f,
			Output: Output{Text: "Send the product description."}}, nil

	case StepProductDescription:
		f["description"] = text
		return Result{Next: StepProductPrice, Fields: f,
			Output: Output{Text: "Send the price in BTC, or tap " + ButtonPriceRUB + "."}}, nil

	case StepProductPrice:
		if text == ButtonPriceRUB {
			return Result{Next: StepProductPriceRUB, Fields: f,
				Output: Output{Text: "Send the price in RUB."}}, nil
		}
		price, err := parsePositiveDecimal(text, "price")
		if err != nil {
			return Result{}, err
		}
		f.SetDecimal("price_btc", price)
		return Result{Next: StepProductContent, Fields: f,
			Output: Output{Text: "Send the content delivered to the buyer after purchase."}}, nil

	case StepProductPriceRUB:
		price, err := parsePositiveDecimal(text, "price")
		if err != nil {
			return Result{}, err
		}
		f.SetDecimal("price_rub", price)
		return Result{Next: StepProductContent, Fields: f,
			Output: Output{Text: "Send the content delivered to the buyer after purchase."}}, nil

	case StepProductContent:
		if text == "" {
			return Result{}, &domain.ValidationError{Field: "content", Reason: "must not be empty"}
		}
		f["content"] = text
		return Result{Next: StepProductLocations, Fields: f,
			Output: Output{Text: "Send the stock per location, one line each:\nMoscow=5\nKazan=2"}}, nil

	case StepProductLocations:
		locations, err := ParseLocations(in.Text)
		if err != nil {
			return Result{}, err
		}
		params, err := m.draftParams(f, locations)
		if err != nil {
			return Result{}, err
		}
		if _, err := m.svc.CreateProduct(ctx, params); err != nil {
			// A duplicate name cannot be fixed at this step; report and finish.
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				return Result{Next: StepDone, Fields: f,
					Output: Output{Text: "❌ " + verr.Error()}}, nil
			}
			return Result{}, err
		}
		total := 0
		for _, qty := range locations {
			total += qty
		}
		return Result{Next: StepDone, Fields: f,
			Output: Output{Text: fmt.Sprintf("✅ Product %q created with %d units across %d locations.",
				params.Name, total, len(locations))}}, nil
	}
	return Result{}, &domain.FatalStateError{Step: string(step), Missing: "known step"}
}

func (m *AddProduct) draftParams(f Fields, locations map[string]int) (storage.CreateProductParams, error) {
	categoryID, ok := f.Int64("category_id")
	if !ok {
		return storage.CreateProductParams{}, &domain.FatalStateError{Step: string(StepProductLocations), Missing: "category_id"}
	}
	if f["name"] == "" || f["content"] == "" {
		return storage.CreateProductParams{}, &domain.FatalStateError{Step: string(StepProductLocations), Missing: "name/content"}
	}
	params := storage.CreateProductParams{
		CategoryID:  categoryID,
		Name:        f["name"],
		Description: f["description"],
		Content:     f["content"],
		Locations:   locations,
	}
	if btc, ok := f.Decimal("price_btc"); ok {
		params.PriceBTC = btc
	} else if rub, ok := f.Decimal("price_rub"); ok {
		params.PriceRUB = decimal.NullDecimal{Decimal: rub, Valid: true}
	} else {
		return storage.CreateProductParams{}, &domain.FatalStateError{Step: string(StepProductLocations), Missing: "price"}
	}
	return params, nil
}

// Restock tops up an existing product's stock from the same Name=Qty input
// the product flow uses.
type Restock struct {
	svc CatalogAdmin
}

// NewRestock builds the restock machine.
func NewRestock(svc CatalogAdmin) *Restock {
	return &Restock{svc: svc}
}

const StepRestockLines Step = "restock_lines"

func (m *Restock) Name() string { return "admin_restock" }

func (m *Restock) Begin(ctx context.Context, seed Fields) (Result, error) {
	if _, ok := seed.Int64("product_id"); !ok {
		return Result{}, &domain.FatalStateError{Step: "begin", Missing: "product_id"}
	}
	return Result{
		Next:   StepRestockLines,
		Fields: seed.Clone(),
		Output: Output{Text: "Send the units to add per location, one line each:\nMoscow=5"},
	}, nil
}

func (m *Restock) Transition(ctx context.Context, step Step, fields Fields, in Input) (Result, error) {
	if step != StepRestockLines {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "known step"}
	}
	productID, ok := fields.Int64("product_id")
	if !ok {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "product_id"}
	}
	locations, err := ParseLocations(in.Text)
	if err != nil {
		return Result{}, err
	}
	names := make([]string, 0, len(locations))
	for name := range locations {
		names = append(names, name)
	}
	sort.Strings(names)
	total := 0
	for _, name := range names {
		if err := m.svc.AddStock(ctx, productID, name, locations[name]); err != nil {
			return Result{}, err
		}
		total += locations[name]
	}
	return Result{
		Next:   StepDone,
		Fields: fields.Clone(),
		Output: Output{Text: fmt.Sprintf("✅ Added %d units across %d locations.", total, len(names))},
	}, nil
}

// EditAbout replaces the shop info text.
type EditAbout struct {
	svc CatalogAdmin
}

// NewEditAbout builds the edit-about machine.
func NewEditAbout(svc CatalogAdmin) *EditAbout {
	return &EditAbout{svc: svc}
}

const StepAboutText Step = "about_text"

func (m *EditAbout) Name() string { return "admin_edit_about" }

func (m *EditAbout) Begin(ctx context.Context, seed Fields) (Result, error) {
	prompt := "Send the new shop info text."
	if current := seed["current"]; current != "" {
		prompt = "Current text:\n\n" + current + "\n\nSend the replacement."
	}
	return Result{Next: StepAboutText, Fields: seed.Clone(), Output: Output{Text: prompt}}, nil
}

func (m *EditAbout) Transition(ctx context.Context, step Step, fields Fields, in Input) (Result, error) {
	if step != StepAboutText {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "known step"}
	}
	if err := m.svc.UpdateAbout(ctx, in.Text); err != nil {
		return Result{}, err
	}
	return Result{
		Next:   StepDone,
		Fields: fields.Clone(),
		Output: Output{Text: "✅ Shop info updated."},
	}, nil
}

func parsePositiveDecimal(text, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(text, ",", "."))
	if err != nil {
		return decimal.Decimal{}, &domain.ValidationError{Field: field, Reason: "must be a number"}
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, &domain.ValidationError{Field: field, Reason: "must be positive"}
	}
	return d, nil
}
