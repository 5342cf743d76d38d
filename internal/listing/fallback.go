package listing

import (
	"strings"

	"github.com/antoinelm/listful/internal/provider"
)

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	if strings.HasSuffix(s, "…") {
		return s
	}
	return s + "."
}

// keySpecLine joins the notable confirmed specs into one "key facts" line.
func keySpecLine(req Request) string {
	fr := isFrench(req.Lang)
	specs := req.Specs
	unlocked := ""
	if specs.Unlocked {
		unlocked = bilingual(fr, "désimlocké", "unlocked")
	}
	battery := ""
	if specs.BatteryHealth != "" {
		battery = bilingual(fr, "batterie ", "battery ") + specs.BatteryHealth
	}
	brandModel := ""
	if specs.Brand != "" && specs.Model != "" {
		brandModel = specs.Brand + " " + specs.Model
	}
	recent := ""
	if req.Options.Recent {
		recent = bilingual(fr, "acheté récemment", "bought recently")
	}
	neverWorn := ""
	if req.Options.NeverWorn {
		neverWorn = bilingual(fr, "jamais porté", "never worn")
	}
	return joinNonEmpty([]string{
		brandModel,
		specs.Storage,
		specs.RAM,
		req.Color,
		firstNonEmpty(specs.Size, specs.ShoeSize, specs.ScreenSize),
		unlocked,
		battery,
		neverWorn,
		recent,
	}, " • ")
}

// HumanFallback synthesizes a short human-toned description without any
// generative service. It always returns a non-empty description.
func HumanFallback(req Request) provider.ListingText {
	fr := isFrench(req.Lang)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = bilingual(fr, "Article à vendre", "Item for sale")
	}
	cond := ParseGrade(req.Condition).Label(req.Lang)

	var paras []string
	if fr {
		paras = []string{
			sentence("Je vends mon/ma " + title),
			sentence(keySpecLine(req)),
			sentence("État : " + cond),
			sentence("Remise en main propre possible, envoi ok si frais pris en charge"),
		}
	} else {
		paras = []string{
			sentence("Selling my " + title),
			sentence(keySpecLine(req)),
			sentence("Condition: " + cond),
			sentence("Can meet locally, happy to ship if you cover postage"),
		}
	}
	return provider.ListingText{
		DescriptionLong:  joinNonEmpty(paras, "\n\n"),
		DescriptionShort: title + " — " + cond,
	}
}
