package listing

import (
	"strings"

	"github.com/antoinelm/listful/internal/provider"
)

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

func joinNonEmpty(parts []string, sep string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func bilingual(fr bool, french, english string) string {
	if fr {
		return french
	}
	return english
}

// BuildTemplate assembles a deterministic bullet description for the
// request's category. Each category emits a fixed ordered subset of the
// available spec lines; bullets with no backing data are skipped.
func BuildTemplate(req Request) provider.ListingText {
	fr := isFrench(req.Lang)
	grade := ParseGrade(req.Condition)
	score := grade.Score(req.Lang)
	cat := PickCategory(req.CategoryID, req.Title, req.Specs)

	specs := req.Specs
	size := firstNonEmpty(specs.Size, specs.ShoeSize, specs.ScreenSize)
	includes := strings.TrimSpace(specs.Accessories)

	var bullets []string
	push := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			bullets = append(bullets, s)
		}
	}

	recap := joinNonEmpty([]string{
		firstNonEmpty(joinNonEmpty([]string{specs.Brand, specs.Model}, " "), req.Title),
		specs.Storage,
		req.Color,
	}, " — ")
	push(recap)

	condLine := bilingual(fr, "État : ", "Condition: ") + score
	sizeLine := func(frLabel, enLabel string) string {
		if size == "" {
			return ""
		}
		return bilingual(fr, frLabel, enLabel) + size
	}
	includedLine := ""
	if includes != "" {
		includedLine = bilingual(fr, "Inclus : ", "Included: ") + includes
	}
	colorLine := ""
	if req.Color != "" {
		colorLine = bilingual(fr, "Couleur : ", "Colour: ") + req.Color
	}
	storageLine := ""
	if specs.Storage != "" {
		storageLine = bilingual(fr, "Stockage : ", "Storage: ") + specs.Storage
	}
	batteryLine := ""
	if specs.BatteryHealth != "" {
		batteryLine = bilingual(fr, "Batterie : ", "Battery: ") + specs.BatteryHealth
	}

	switch cat {
	case CatClothes:
		push(condLine)
		push(bilingual(fr, "Aucune tache, trou ou décoloration visible.", "No visible marks, holes, or color degrading."))
		push(sizeLine("Taille : ", "Size: "))
		push(colorLine)
		push(bilingual(fr, "Expédition rapide et soignée", "Fast, careful shipping"))
	case CatShoes:
		push(condLine)
		push(bilingual(fr, "Semelles et talons en bon état.", "Soles and heels in good condition."))
		push(sizeLine("Pointure : ", "Size: "))
		push(colorLine)
		push(bilingual(fr, "Envoi soigné / remise en main propre possible", "Careful shipping / local pickup OK"))
	case CatPhone:
		push(condLine)
		push(bilingual(fr, "Écran et dos intacts (voir photos).", "Screen and back intact (see photos)."))
		push(storageLine)
		push(batteryLine)
		push(includedLine)
	case CatLaptop:
		push(condLine)
		if mem := joinNonEmpty([]string{specs.RAM, specs.Storage}, " / "); mem != "" {
			push(bilingual(fr, "Mémoire/SSD : ", "RAM/SSD: ") + mem)
		}
		push(sizeLine("Écran : ", "Display: "))
		if specs.Processor != "" {
			push(bilingual(fr, "Processeur : ", "CPU: ") + specs.Processor)
		}
		if specs.GPU != "" {
			push(bilingual(fr, "Graphiques : ", "GPU: ") + specs.GPU)
		}
		push(includedLine)
	case CatTablet:
		push(condLine)
		push(storageLine)
		push(sizeLine("Écran : ", "Display: "))
		push(includedLine)
	case CatConsole:
		push(condLine)
		push(storageLine)
		if specs.Controllers != "" {
			push(bilingual(fr, "Manettes : ", "Controllers: ") + specs.Controllers)
		}
		push(includedLine)
	case CatCamera:
		push(condLine)
		push(includedLine)
	case CatHeadphones:
		push(condLine)
		push(batteryLine)
		push(includedLine)
	case CatWearable:
		push(condLine)
		push(sizeLine("Taille boîtier : ", "Case size: "))
		push(colorLine)
		push(batteryLine)
	case CatBag:
		push(condLine)
		push(bilingual(fr, "Aucun accroc ni tache.", "No visible marks or tears."))
		push(sizeLine("Dimensions : ", "Size: "))
		if specs.Material != "" {
			push(bilingual(fr, "Matière : ", "Material: ") + specs.Material)
		}
		push(colorLine)
	case CatDisplay:
		push(condLine)
		push(sizeLine("Taille : ", "Size: "))
		if specs.Resolution != "" {
			push(bilingual(fr, "Résolution : ", "Resolution: ") + specs.Resolution)
		}
		if specs.RefreshRate != "" {
			push(bilingual(fr, "Fréquence : ", "Refresh: ") + specs.RefreshRate)
		}
	case CatSpeaker:
		push(condLine)
		push(includedLine)
	case CatFurniture:
		push(condLine)
		push(sizeLine("Dimensions : ", "Size: "))
		if specs.Material != "" {
			push(bilingual(fr, "Matière : ", "Material: ") + specs.Material)
		}
		push(bilingual(fr, "Retrait sur place privilégié", "Prefer local pickup"))
	case CatBike:
		push(condLine)
		push(sizeLine("Taille cadre : ", "Frame size: "))
		push(batteryLine)
	case CatVape:
		push(condLine)
		push(bilingual(fr, "Nettoyé, prêt à l'emploi.", "Cleaned, ready to use."))
		push(batteryLine)
		push(includedLine)
	case CatCollectible:
		push(condLine)
		if includes != "" {
			push(bilingual(fr, "Complet : ", "Complete: ") + includes)
		}
	default:
		push(condLine)
		push(includedLine)
		push(bilingual(fr, "Envoi rapide", "Fast shipping"))
	}

	long := strings.Join(bullets, "\n\n")
	short := req.Title
	if len(bullets) > 0 {
		short = bullets[0]
	}
	return provider.ListingText{DescriptionLong: long, DescriptionShort: short}
}
