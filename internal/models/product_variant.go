package models

// ProductVariant holds the sellable unit whose stock is reserved at checkout.
type ProductVariant struct {
	BaseModel
	SKU           string `gorm:"uniqueIndex" json:"sku"`
	Name          string `json:"name"`
	StockQuantity int    `json:"stock_quantity"`
}
