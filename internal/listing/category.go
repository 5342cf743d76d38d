package listing

import (
	"strings"

	"github.com/antoinelm/listful/internal/pricing"
)

// Category tags select which bullet template a listing gets.
type Category string

const (
	CatVape        Category = "vape"
	CatPhone       Category = "phone"
	CatLaptop      Category = "laptop"
	CatConsole     Category = "console"
	CatShoes       Category = "shoes"
	CatTablet      Category = "tablet"
	CatWearable    Category = "wearable"
	CatBag         Category = "bag"
	CatCamera      Category = "camera"
	CatHeadphones  Category = "headphones"
	CatDisplay     Category = "display"
	CatSpeaker     Category = "speaker"
	CatFurniture   Category = "furniture"
	CatBike        Category = "bike"
	CatCollectible Category = "collectible"
	CatClothes     Category = "clothes"
	CatGeneric     Category = "generic"
)

// categoryRule pairs a predicate with the category it selects. Rules are
// evaluated in order; the first match wins, so specific categories must be
// listed before broad ones.
type categoryRule struct {
	tag   Category
	match func(haystack string, specs pricing.RefinedSpecs) bool
}

func keywordRule(tag Category, keywords ...string) categoryRule {
	return categoryRule{tag: tag, match: func(h string, _ pricing.RefinedSpecs) bool {
		for _, k := range keywords {
			if strings.Contains(h, k) {
				return true
			}
		}
		return false
	}}
}

var categoryRules = []categoryRule{
	keywordRule(CatVape, "vape", "puff", "e-cig", "ecig", "vapoteuse", "pod kit"),
	keywordRule(CatPhone, "phone", "iphone", "galaxy s", "pixel", "smartphone", "xiaomi", "redmi"),
	keywordRule(CatLaptop, "laptop", "notebook", "macbook", "thinkpad", "ordinateur portable"),
	keywordRule(CatConsole, "console", "playstation", "ps4", "ps5", "xbox", "switch", "nintendo"),
	{tag: CatShoes, match: func(h string, specs pricing.RefinedSpecs) bool {
		if specs.ShoeSize != "" {
			return true
		}
		for _, k := range []string{"shoe", "sneaker", "basket", "chaussure", "nike air", "jordan"} {
			if strings.Contains(h, k) {
				return true
			}
		}
		return false
	}},
	keywordRule(CatTablet, "tablet", "ipad", "galaxy tab", "tablette"),
	keywordRule(CatWearable, "watch", "apple watch", "fitbit", "garmin", "montre connectée", "bracelet connecté"),
	keywordRule(CatBag, "bag", "sac", "backpack", "handbag", "valise"),
	keywordRule(CatCamera, "camera", "appareil photo", "eos", "alpha", "lumix", "reflex", "hybride"),
	keywordRule(CatHeadphones, "headphone", "earbud", "airpods", "casque audio", "écouteur", "ecouteur", "buds"),
	keywordRule(CatDisplay, "monitor", "écran", "ecran pc", "tv", "television", "téléviseur"),
	keywordRule(CatSpeaker, "speaker", "enceinte", "soundbar", "barre de son"),
	keywordRule(CatFurniture, "furniture", "desk", "table", "chair", "bureau", "chaise", "canapé", "meuble"),
	keywordRule(CatBike, "bike", "vélo", "velo", "scooter", "trottinette", "vtt"),
	keywordRule(CatCollectible, "collectible", "figurine", "lego", "funko", "carte pokemon", "toy"),
	keywordRule(CatClothes, "cloth", "apparel", "tshirt", "t-shirt", "jean", "hoodie", "dress", "veste", "manteau", "pull", "robe"),
}

// PickCategory infers the bullet-template category from a free-text category
// id, the listing title, and the confirmed specs.
func PickCategory(categoryID, title string, specs pricing.RefinedSpecs) Category {
	haystack := strings.ToLower(categoryID + " " + title)
	for _, r := range categoryRules {
		if r.match(haystack, specs) {
			return r.tag
		}
	}
	return CatGeneric
}
