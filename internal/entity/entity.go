package entity

import (
	"fmt"
	"strconv"

	"github.com/kemiz/fsgrid/internal/ir"
)

// Entity is a record held in a Store. Implementations are immutable value
// objects; Get takes the canonical (schema-declared) field name.
type Entity interface {
	ID() int64
	Get(field string) (ir.IRValue, bool)
	String() string
}

// FSEntity is a synthetic financial-services entity.
type FSEntity struct {
	id             int64
	batch          string
	issueCountry   string
	sector         ir.IRValue
	billingCode    string
	currencyCode   string
	prepaymentType string
	liquidityScore int64
}

// FSEntityFields carries the non-key fields of an FSEntity.
type FSEntityFields struct {
	Batch          string
	IssueCountry   string
	Sector         ir.IRValue
	BillingCode    string
	CurrencyCode   string
	PrepaymentType string
	LiquidityScore int64
}

// FromFields builds an FSEntity from explicit field values. Nothing is
// validated; a nil sector is stored as IRNull.
func FromFields(id int64, f FSEntityFields) FSEntity {
	sector := f.Sector
	if sector == nil {
		sector = ir.IRNull{}
	}
	return FSEntity{
		id:             id,
		batch:          f.Batch,
		issueCountry:   f.IssueCountry,
		sector:         sector,
		billingCode:    f.BillingCode,
		currencyCode:   f.CurrencyCode,
		prepaymentType: f.PrepaymentType,
		liquidityScore: f.LiquidityScore,
	}
}

// NewFSEntity builds the i-th synthetic entity. The batch, billing code,
// prepayment type and liquidity score are derived from i.
func NewFSEntity(i int64, country, currency string, sector ir.IRValue) FSEntity {
	n := strconv.FormatInt(i, 10)
	return FromFields(i, FSEntityFields{
		Batch:          "batch" + n,
		IssueCountry:   country,
		Sector:         sector,
		BillingCode:    "billingCode" + n,
		CurrencyCode:   currency,
		PrepaymentType: "prepayment" + n,
		LiquidityScore: i,
	})
}

func (e FSEntity) ID() int64              { return e.id }
func (e FSEntity) Batch() string          { return e.batch }
func (e FSEntity) IssueCountry() string   { return e.issueCountry }
func (e FSEntity) Sector() ir.IRValue     { return e.sector }
func (e FSEntity) BillingCode() string    { return e.billingCode }
func (e FSEntity) CurrencyCode() string   { return e.currencyCode }
func (e FSEntity) PrepaymentType() string { return e.prepaymentType }
func (e FSEntity) LiquidityScore() int64  { return e.liquidityScore }

// Get implements Entity.
func (e FSEntity) Get(field string) (ir.IRValue, bool) {
	switch field {
	case "id":
		return ir.IRInt(e.id), true
	case "batch":
		return ir.IRString(e.batch), true
	case "issue_country":
		return ir.IRString(e.issueCountry), true
	case "sector":
		if e.sector == nil {
			return ir.IRNull{}, true
		}
		return e.sector, true
	case "billing_code":
		return ir.IRString(e.billingCode), true
	case "currency_code":
		return ir.IRString(e.currencyCode), true
	case "prepayment_type":
		return ir.IRString(e.prepaymentType), true
	case "liquidity_score":
		return ir.IRInt(e.liquidityScore), true
	}
	return nil, false
}

func (e FSEntity) String() string {
	return fmt.Sprintf("FSEntity [id=%d, batch=%s, issueCountry=%s, sector=%s, billingCode=%s, currencyCode=%s, prepaymentType=%s, liquidityScore=%d]",
		e.id, e.batch, e.issueCountry, ir.Format(e.sector), e.billingCode, e.currencyCode, e.prepaymentType, e.liquidityScore)
}

// Sector is a reference entity naming an industry sector.
type Sector struct {
	id   int64
	name string
}

func NewSector(id int64, name string) Sector {
	return Sector{id: id, name: name}
}

func (s Sector) ID() int64    { return s.id }
func (s Sector) Name() string { return s.name }

func (s Sector) Get(field string) (ir.IRValue, bool) {
	switch field {
	case "id":
		return ir.IRInt(s.id), true
	case "sector_name":
		return ir.IRString(s.name), true
	}
	return nil, false
}

func (s Sector) String() string {
	return fmt.Sprintf("Sector [id=%d, name=%s]", s.id, s.name)
}

// Currency is a reference entity holding an ISO 4217 currency code.
type Currency struct {
	id   int64
	code string
}

func NewCurrency(id int64, code string) Currency {
	return Currency{id: id, code: code}
}

func (c Currency) ID() int64    { return c.id }
func (c Currency) Code() string { return c.code }

func (c Currency) Get(field string) (ir.IRValue, bool) {
	switch field {
	case "id":
		return ir.IRInt(c.id), true
	case "currency_code":
		return ir.IRString(c.code), true
	}
	return nil, false
}

func (c Currency) String() string {
	return fmt.Sprintf("Currency [id=%d, code=%s]", c.id, c.code)
}
