package models

// ProductOption lists the selectable values for one option axis (e.g. Size).
type ProductOption struct {
	ID        uint     `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID uint     `gorm:"column:product_id;not null;index"`
	Name      string   `gorm:"column:name;not null"`
	Position  int      `gorm:"column:position;not null;default:0"`
	Values    []string `gorm:"column:option_values;type:text;serializer:json"`
}
