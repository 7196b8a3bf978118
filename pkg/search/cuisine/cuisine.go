// Package cuisine is the closed vocabulary of cuisine keys the pipeline
// understands, with the provider place types and localized search terms for
// each key.
package cuisine

import (
	"sort"
	"strings"

	"ai-restaurant-search-be/pkg/search/langctx"
)

type Entry struct {
	Key           string
	IncludedTypes []string
	Terms         map[langctx.Language]string
	Synonyms      []string
}

var vocabulary = map[string]Entry{
	"italian": {
		Key:           "italian",
		IncludedTypes: []string{"italian_restaurant", "pizza_restaurant"},
		Terms:         terms("italian restaurant", "מסעדה איטלקית", "итальянский ресторан", "مطعم إيطالي", "restaurant italien", "restaurante italiano"),
		Synonyms:      []string{"italian", "pasta", "trattoria", "איטלקי", "איטלקית", "итальян", "إيطالي", "italien", "italiano"},
	},
	"pizza": {
		Key:           "pizza",
		IncludedTypes: []string{"pizza_restaurant"},
		Terms:         terms("pizza", "פיצה", "пицца", "بيتزا", "pizzeria", "pizzería"),
		Synonyms:      []string{"pizza", "pizzeria", "פיצה", "пицц", "بيتزا"},
	},
	"japanese": {
		Key:           "japanese",
		IncludedTypes: []string{"japanese_restaurant", "ramen_restaurant"},
		Terms:         terms("japanese restaurant", "מסעדה יפנית", "японский ресторан", "مطعم ياباني", "restaurant japonais", "restaurante japonés"),
		Synonyms:      []string{"japanese", "ramen", "izakaya", "יפני", "יפנית", "японск", "ياباني", "japonais", "japonés"},
	},
	"sushi": {
		Key:           "sushi",
		IncludedTypes: []string{"sushi_restaurant", "japanese_restaurant"},
		Terms:         terms("sushi", "סושי", "суши", "سوشي", "sushi", "sushi"),
		Synonyms:      []string{"sushi", "סושי", "суши", "سوشي"},
	},
	"chinese": {
		Key:           "chinese",
		IncludedTypes: []string{"chinese_restaurant"},
		Terms:         terms("chinese restaurant", "מסעדה סינית", "китайский ресторан", "مطعم صيني", "restaurant chinois", "restaurante chino"),
		Synonyms:      []string{"chinese", "dim sum", "סיני", "סינית", "китайск", "صيني", "chinois", "chino"},
	},
	"indian": {
		Key:           "indian",
		IncludedTypes: []string{"indian_restaurant"},
		Terms:         terms("indian restaurant", "מסעדה הודית", "индийский ресторан", "مطعم هندي", "restaurant indien", "restaurante indio"),
		Synonyms:      []string{"indian", "curry", "הודי", "הודית", "индийск", "هندي", "indien", "indio"},
	},
	"thai": {
		Key:           "thai",
		IncludedTypes: []string{"thai_restaurant"},
		Terms:         terms("thai restaurant", "מסעדה תאילנדית", "тайский ресторан", "مطعم تايلندي", "restaurant thaï", "restaurante tailandés"),
		Synonyms:      []string{"thai", "תאילנדי", "тайск", "تايلندي", "thaï", "tailandés"},
	},
	"mexican": {
		Key:           "mexican",
		IncludedTypes: []string{"mexican_restaurant"},
		Terms:         terms("mexican restaurant", "מסעדה מקסיקנית", "мексиканский ресторан", "مطعم مكسيكي", "restaurant mexicain", "restaurante mexicano"),
		Synonyms:      []string{"mexican", "taco", "burrito", "מקסיקני", "мексиканск", "مكسيكي", "mexicain", "mexicano"},
	},
	"french": {
		Key:           "french",
		IncludedTypes: []string{"french_restaurant"},
		Terms:         terms("french restaurant", "מסעדה צרפתית", "французский ресторан", "مطعم فرنسي", "restaurant français", "restaurante francés"),
		Synonyms:      []string{"french", "bistro", "brasserie", "צרפתי", "французск", "فرنسي", "français", "francés"},
	},
	"burger": {
		Key:           "burger",
		IncludedTypes: []string{"hamburger_restaurant"},
		Terms:         terms("burger", "המבורגר", "бургер", "برجر", "burger", "hamburguesa"),
		Synonyms:      []string{"burger", "hamburger", "המבורגר", "бургер", "برجر", "hamburguesa"},
	},
	"steakhouse": {
		Key:           "steakhouse",
		IncludedTypes: []string{"steak_house"},
		Terms:         terms("steakhouse", "מסעדת בשרים", "стейк-хаус", "مطعم ستيك", "steakhouse", "asador"),
		Synonyms:      []string{"steak", "בשרים", "стейк", "ستيك", "asador"},
	},
	"seafood": {
		Key:           "seafood",
		IncludedTypes: []string{"seafood_restaurant"},
		Terms:         terms("seafood restaurant", "מסעדת דגים", "рыбный ресторан", "مطعم مأكولات بحرية", "restaurant de fruits de mer", "marisquería"),
		Synonyms:      []string{"seafood", "fish", "דגים", "рыбн", "مأكولات بحرية", "fruits de mer", "marisco"},
	},
	"mediterranean": {
		Key:           "mediterranean",
		IncludedTypes: []string{"mediterranean_restaurant", "greek_restaurant"},
		Terms:         terms("mediterranean restaurant", "מסעדה ים תיכונית", "средиземноморский ресторан", "مطعم متوسطي", "restaurant méditerranéen", "restaurante mediterráneo"),
		Synonyms:      []string{"mediterranean", "greek", "ים תיכוני", "средиземноморск", "متوسطي", "méditerranéen", "mediterráneo"},
	},
	"middle_eastern": {
		Key:           "middle_eastern",
		IncludedTypes: []string{"middle_eastern_restaurant", "lebanese_restaurant", "turkish_restaurant"},
		Terms:         terms("middle eastern restaurant", "מסעדה מזרחית", "ближневосточный ресторан", "مطعم شرقي", "restaurant oriental", "restaurante de oriente medio"),
		Synonyms:      []string{"middle eastern", "hummus", "falafel", "shawarma", "חומוס", "פלאפל", "שווארמה", "מזרחי", "хумус", "شاورما", "حمص", "فلافل"},
	},
	"vegan": {
		Key:           "vegan",
		IncludedTypes: []string{"vegan_restaurant", "vegetarian_restaurant"},
		Terms:         terms("vegan restaurant", "מסעדה טבעונית", "веганский ресторан", "مطعم نباتي", "restaurant végan", "restaurante vegano"),
		Synonyms:      []string{"vegan", "vegetarian", "טבעוני", "צמחוני", "веган", "вегетариан", "نباتي", "végan", "vegano"},
	},
	"cafe": {
		Key:           "cafe",
		IncludedTypes: []string{"cafe", "coffee_shop"},
		Terms:         terms("cafe", "בית קפה", "кафе", "مقهى", "café", "cafetería"),
		Synonyms:      []string{"cafe", "café", "coffee", "קפה", "кафе", "кофе", "مقهى", "cafetería"},
	},
	"bakery": {
		Key:           "bakery",
		IncludedTypes: []string{"bakery"},
		Terms:         terms("bakery", "מאפייה", "пекарня", "مخبز", "boulangerie", "panadería"),
		Synonyms:      []string{"bakery", "pastry", "מאפייה", "пекарн", "مخبز", "boulangerie", "panadería"},
	},
	"breakfast": {
		Key:           "breakfast",
		IncludedTypes: []string{"breakfast_restaurant", "brunch_restaurant"},
		Terms:         terms("breakfast", "ארוחת בוקר", "завтрак", "فطور", "petit-déjeuner", "desayuno"),
		Synonyms:      []string{"breakfast", "brunch", "ארוחת בוקר", "бранч", "завтрак", "فطور", "petit-déjeuner", "desayuno"},
	},
}

func terms(en, he, ru, ar, fr, es string) map[langctx.Language]string {
	return map[langctx.Language]string{
		langctx.English: en,
		langctx.Hebrew:  he,
		langctx.Russian: ru,
		langctx.Arabic:  ar,
		langctx.French:  fr,
		langctx.Spanish: es,
	}
}

// DefaultTypes is used when no cuisine is known.
var DefaultTypes = []string{"restaurant"}

func Lookup(key string) (Entry, bool) {
	e, ok := vocabulary[key]
	return e, ok
}

// IsValid reports whether key is empty or belongs to the vocabulary.
func IsValid(key string) bool {
	if key == "" {
		return true
	}
	_, ok := vocabulary[key]
	return ok
}

// Keys returns the vocabulary sorted alphabetically.
func Keys() []string {
	keys := make([]string, 0, len(vocabulary))
	for k := range vocabulary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Term returns the search term for key in lang, falling back to English.
func Term(key string, lang langctx.Language) string {
	e, ok := vocabulary[key]
	if !ok {
		return ""
	}
	if t, ok := e.Terms[lang]; ok {
		return t
	}
	return e.Terms[langctx.English]
}

// Detect is the fallback used only when the classifier is unavailable. Keys
// are scanned in sorted order so the result is deterministic.
func Detect(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, k := range Keys() {
		for _, syn := range vocabulary[k].Synonyms {
			if strings.Contains(lower, syn) {
				return k, true
			}
		}
	}
	return "", false
}

// TypeMatch reports whether any of the place types belongs to key.
func TypeMatch(key string, placeTypes []string) bool {
	e, ok := vocabulary[key]
	if !ok {
		return false
	}
	for _, pt := range placeTypes {
		for _, it := range e.IncludedTypes {
			if pt == it {
				return true
			}
		}
	}
	return false
}
