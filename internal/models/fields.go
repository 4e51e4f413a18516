package models

// Node field names shared by the upsert engine, the stores and the query
// layer. Numbers are stored as float64 and timestamps as RFC3339 text.
const (
	// shared
	FName      = "name"
	FClass     = "class"
	FTicker    = "ticker"
	FISIN      = "isin"
	FCUSIP     = "cusip"
	FPrice     = "price"
	FIssuerID  = "issuer_id"
	FCreatedAt = "created_at"
	FUpdatedAt = "updated_at"
	FLastRunID = "last_run_id"

	// portfolio
	FTotalBookValue = "total_book_value"
	FPositionCount  = "position_count"

	// position
	FPortfolio    = "portfolio"
	FPositionKey  = "position_key"
	FRow          = "row"
	FSecurityKey  = "security_key"
	FSecurityType = "security_type"
	FQuantity     = "quantity"
	FCostBasis    = "cost_basis"
	FCurrentValue = "current_value"
	FBookValue    = "book_value"
	FMarketValue  = "market_value"
	FWeight       = "weight"
	FPurchaseDate = "purchase_date"

	// security
	FIdentifierType  = "identifier_type"
	FIdentifierValue = "identifier_value"
	FVariant         = "variant"
	FPriceDate       = "price_date"
	FCouponRate      = "coupon_rate"
	FCurrency        = "currency"
	FMaturity        = "maturity"

	// company
	FSector            = "sector"
	FIndustry          = "industry"
	FOperationsCountry = "operations_country"
	FDomicileCountry   = "domicile_country"

	// country
	FCode   = "code"
	FRegion = "region"

	// executive
	FTitle     = "title"
	FStartDate = "start_date"
)
