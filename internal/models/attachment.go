package models

// AttachmentKind discriminates structured content blocks carried by assistant
// messages.
type AttachmentKind string

const (
	AttachmentNutritionAnalysis AttachmentKind = "nutrition_analysis"
	AttachmentDishCandidates    AttachmentKind = "dish_candidates"
	AttachmentRecommendedDishes AttachmentKind = "recommended_dishes"
	AttachmentIngredientTable   AttachmentKind = "ingredient_table"
)

// Attachment is a structured content block rendered as a card next to the
// message text. Exactly one of the payload fields is set, matching Kind.
type Attachment struct {
	Kind        AttachmentKind     `json:"kind"`
	Nutrition   *NutritionAnalysis `json:"nutrition,omitempty"`
	Dishes      []DishCandidate    `json:"dishes,omitempty"`
	Recommended []RecommendedDish  `json:"recommended,omitempty"`
	Ingredients []IngredientRow    `json:"ingredients,omitempty"`
}

// NutritionAnalysis summarizes a logged meal against renal-diet limits.
// Amounts are per serving; sodium, potassium and phosphorus in milligrams,
// protein in grams.
type NutritionAnalysis struct {
	Dish         string  `json:"dish,omitempty"`
	Calories     float64 `json:"calories,omitempty"`
	ProteinG     float64 `json:"proteinG,omitempty"`
	SodiumMg     float64 `json:"sodiumMg,omitempty"`
	PotassiumMg  float64 `json:"potassiumMg,omitempty"`
	PhosphorusMg float64 `json:"phosphorusMg,omitempty"`
	Verdict      string  `json:"verdict,omitempty"`
}

// DishCandidate is one option in a disambiguation picker ("did you mean...").
type DishCandidate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RecommendedDish is one entry of a suggested-meals list.
type RecommendedDish struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// IngredientRow is one line of an ingredient breakdown table.
type IngredientRow struct {
	Name         string  `json:"name"`
	AmountG      float64 `json:"amountG,omitempty"`
	PotassiumMg  float64 `json:"potassiumMg,omitempty"`
	PhosphorusMg float64 `json:"phosphorusMg,omitempty"`
}
