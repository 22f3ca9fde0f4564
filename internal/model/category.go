package model

// Category is the bill category assigned by the classification rule table.
type Category string

// Bill categories. CategoryOther is the fallback branch of every rule table.
const (
	CategoryUtilities    Category = "utilities"
	CategoryTelecom      Category = "telecom"
	CategoryInternet     Category = "internet"
	CategoryStreaming    Category = "streaming"
	CategorySoftware     Category = "software"
	CategoryInsurance    Category = "insurance"
	CategoryHousing      Category = "housing"
	CategoryLoan         Category = "loan"
	CategoryCreditCard   Category = "credit_card"
	CategoryFitness      Category = "fitness"
	CategorySubscription Category = "subscription"
	CategoryOther        Category = "other"
)

var knownCategories = map[Category]bool{
	CategoryUtilities:    true,
	CategoryTelecom:      true,
	CategoryInternet:     true,
	CategoryStreaming:    true,
	CategorySoftware:     true,
	CategoryInsurance:    true,
	CategoryHousing:      true,
	CategoryLoan:         true,
	CategoryCreditCard:   true,
	CategoryFitness:      true,
	CategorySubscription: true,
	CategoryOther:        true,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return knownCategories[c]
}

// IsSet reports whether c carries real information, i.e. is neither empty nor the fallback.
func (c Category) IsSet() bool {
	return c != "" && c != CategoryOther
}

// ParseCategory maps free text to a Category, returning CategoryOther for unknown values.
func ParseCategory(s string) Category {
	c := Category(s)
	if c.Valid() {
		return c
	}
	return CategoryOther
}
