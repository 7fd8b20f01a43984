package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/storage"
)

type stubAdmin struct {
	categories []string
	catErr     error

	products []storage.CreateProductParams
	prodErr  error

	stock map[string]int

	about string
}

func (s *stubAdmin) CreateCategory(ctx context.Context, name string) (int64, error) {
	if s.catErr != nil {
		return 0, s.catErr
	}
	s.categories = append(s.categories, name)
	return int64(len(s.categories)), nil
}

func (s *stubAdmin) CreateProduct(ctx context.Context, p storage.CreateProductParams) (int64, error) {
	if s.prodErr != nil {
		return 0, s.prodErr
	}
	s.products = append(s.products, p)
	return int64(len(s.products)), nil
}

func (s *stubAdmin) AddStock(ctx context.Context, productID int64, location string, qty int) error {
	if s.stock == nil {
		s.stock = make(map[string]int)
	}
	s.stock[location] += qty
	return nil
}

func (s *stubAdmin) UpdateAbout(ctx context.Context, text string) error {
	s.about = text
	return nil
}

func step(t *testing.T, m Machine, res Result, text string) Result {
	t.Helper()
	next, err := m.Transition(context.Background(), res.Next, res.Fields, Input{UserID: 1, Text: text})
	require.NoError(t, err)
	return next
}

func TestAddCategoryFlow(t *testing.T) {
	svc := &stubAdmin{}
	m := NewAddCategory(svc)

	res, err := m.Begin(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StepCategoryName, res.Next)

	res = step(t, m, res, "Gift cards")
	assert.Equal(t, StepDone, res.Next)
	assert.Equal(t, []string{"Gift cards"}, svc.categories)
}

func TestAddCategoryDuplicateKeepsStep(t *testing.T) {
	svc := &stubAdmin{catErr: &domain.ValidationError{Field: "category", Reason: "already exists"}}
	m := NewAddCategory(svc)

	res, err := m.Begin(context.Background(), nil)
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), res.Next, res.Fields, Input{UserID: 1, Text: "Gift cards"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAddProductFlowBTCPrice(t *testing.T) {
	svc := &stubAdmin{}
	m := NewAddProduct(svc)

	seed := Fields{}
	seed.SetInt64("category_id", 3)
	res, err := m.Begin(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, StepProductName, res.Next)

	res = step(t, m, res, "Steam key")
	res = step(t, m, res, "A fresh key")
	assert.Equal(t, StepProductPrice, res.Next)
	res = step(t, m, res, "0.0015")
	assert.Equal(t, StepProductContent, res.Next)
	res = step(t, m, res, "KEY-XXXX-YYYY")
	assert.Equal(t, StepProductLocations, res.Next)
	res = step(t, m, res, "Moscow=3\nKazan=2")
	assert.Equal(t, StepDone, res.Next)

	require.Len(t, svc.products, 1)
	p := svc.products[0]
	assert.Equal(t, int64(3), p.CategoryID)
	assert.Equal(t, "Steam key", p.Name)
	assert.Equal(t, "0.0015", p.PriceBTC.String())
	assert.False(t, p.PriceRUB.Valid)
	assert.Equal(t, map[string]int{"Moscow": 3, "Kazan": 2}, p.Locations)
}

func TestAddProductFlowRUBPrice(t *testing.T) {
	svc := &stubAdmin{}
	m := NewAddProduct(svc)

	seed := Fields{}
	seed.SetInt64("category_id", 3)
	res, err := m.Begin(context.Background(), seed)
	require.NoError(t, err)

	res = step(t, m, res, "Steam key")
	res = step(t, m, res, "A fresh key")
	res = step(t, m, res, ButtonPriceRUB)
	assert.Equal(t, StepProductPriceRUB, res.Next)
	res = step(t, m, res, "2500,50")
	assert.Equal(t, StepProductContent, res.Next)
	res = step(t, m, res, "KEY-XXXX")
	res = step(t, m, res, "Perm=1")
	assert.Equal(t, StepDone, res.Next)

	require.Len(t, svc.products, 1)
	p := svc.products[0]
	assert.True(t, p.PriceRUB.Valid)
	assert.Equal(t, "2500.5", p.PriceRUB.Decimal.String())
	assert.True(t, p.PriceBTC.IsZero())
}

func TestAddProductFlowValidation(t *testing.T) {
	svc := &stubAdmin{}
	m := NewAddProduct(svc)

	seed := Fields{}
	seed.SetInt64("category_id", 3)
	res, err := m.Begin(context.Background(), seed)
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), res.Next, res.Fields, Input{Text: "   "})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	res = step(t, m, res, "Steam key")
	res = step(t, m, res, "desc")

	_, err = m.Transition(context.Background(), res.Next, res.Fields, Input{Text: "not a number"})
	require.ErrorAs(t, err, &verr)

	_, err = m.Transition(context.Background(), res.Next, res.Fields, Input{Text: "-5"})
	require.ErrorAs(t, err, &verr)
}

func TestAddProductDuplicateNameFinishesWithError(t *testing.T) {
	svc := &stubAdmin{prodErr: &domain.ValidationError{Field: "product", Reason: "already exists"}}
	m := NewAddProduct(svc)

	seed := Fields{}
	seed.SetInt64("category_id", 3)
	res, err := m.Begin(context.Background(), seed)
	require.NoError(t, err)

	res = step(t, m, res, "Steam key")
	res = step(t, m, res, "desc")
	res = step(t, m, res, "0.001")
	res = step(t, m, res, "KEY")
	res = step(t, m, res, "Moscow=1")

	assert.Equal(t, StepDone, res.Next)
	assert.Contains(t, res.Output.Text, "❌")
}

func TestAddProductBeginRequiresCategory(t *testing.T) {
	m := NewAddProduct(&stubAdmin{})
	_, err := m.Begin(context.Background(), Fields{})
	var ferr *domain.FatalStateError
	require.ErrorAs(t, err, &ferr)
}

func TestRestockFlow(t *testing.T) {
	svc := &stubAdmin{}
	m := NewRestock(svc)

	seed := Fields{}
	seed.SetInt64("product_id", 5)
	res, err := m.Begin(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, StepRestockLines, res.Next)

	res = step(t, m, res, "Moscow=4\nKazan=1")
	assert.Equal(t, StepDone, res.Next)
	assert.Equal(t, map[string]int{"Moscow": 4, "Kazan": 1}, svc.stock)
}

func TestEditAboutFlow(t *testing.T) {
	svc := &stubAdmin{}
	m := NewEditAbout(svc)

	res, err := m.Begin(context.Background(), Fields{"current": "old text"})
	require.NoError(t, err)
	assert.Contains(t, res.Output.Text, "old text")

	res = step(t, m, res, "new text")
	assert.Equal(t, StepDone, res.Next)
	assert.Equal(t, "new text", svc.about)
}
