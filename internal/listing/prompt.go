package listing

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
)

// platformTone returns the writing-style preset for a target marketplace.
func platformTone(platform, lang string) string {
	fr := isFrench(lang)
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "vinted"):
		return bilingual(fr,
			"Ton amical et honnête, phrases courtes, pas de pub, pas d'emojis, on reste factuel.",
			"Friendly, honest tone. Short sentences, no hype, no emojis.")
	case strings.Contains(p, "leboncoin"), strings.Contains(p, "lbc"):
		return bilingual(fr,
			"Annonce simple et directe. Aucune exagération. Pas de superlatifs. Style conversationnel.",
			"Simple, direct listing. No fluff. Conversational style.")
	case strings.Contains(p, "ebay"):
		return bilingual(fr,
			"Style clair et précis. Détails utiles pour l'acheteur. Pas de blabla.",
			"Clear, precise style. Practical buyer details. No fluff.")
	default:
		return bilingual(fr,
			"Ton naturel et authentique, comme un particulier. Phrases courtes, sans publicité.",
			"Natural, authentic tone like a private seller. Short sentences, no marketing speak.")
	}
}

func exemplar(lang string) string {
	if isFrench(lang) {
		return strings.TrimSpace(dedent.Dedent(`
			Exemple de ton :
			"Je vends mon iPhone 15 Pro, utilisé environ 8 mois. Modèle 256 Go, couleur Noir sidéral. Toujours protégé avec coque et verre trempé. Tout fonctionne nickel, batterie à ~96%. Je passe au modèle suivant.
			Vendu avec la boîte et le câble USB-C. Remise en main propre possible à Lyon ou envoi si vous prenez les frais."`))
	}
	return strings.TrimSpace(dedent.Dedent(`
		Example tone:
		"Selling my iPhone 15 Pro that I've used for about 8 months. 256GB in Space Black. Always in a case with a screen protector. Everything works perfectly, battery health ~96%. I'm only selling because I upgraded.
		Includes original box and USB-C cable. Can meet in central London or ship if you cover postage."`))
}

// specLines renders the confirmed specs as "- Label: value" lines for the
// prompt. Empty fields are skipped.
func specLines(req Request) string {
	fr := isFrench(req.Lang)
	type kv struct{ label, value string }
	pairs := []kv{
		{bilingual(fr, "Marque", "Brand"), req.Specs.Brand},
		{bilingual(fr, "Modèle", "Model"), req.Specs.Model},
		{bilingual(fr, "Stockage", "Storage"), req.Specs.Storage},
		{"RAM", req.Specs.RAM},
		{bilingual(fr, "Processeur", "Processor"), req.Specs.Processor},
		{bilingual(fr, "Graphiques", "Graphics"), req.Specs.GPU},
		{bilingual(fr, "Écran", "Screen Size"), req.Specs.ScreenSize},
		{bilingual(fr, "Taille", "Size"), firstNonEmpty(req.Specs.Size, req.Specs.ShoeSize)},
		{bilingual(fr, "Couleur", "Color"), req.Color},
		{bilingual(fr, "Batterie", "Battery Health"), req.Specs.BatteryHealth},
		{bilingual(fr, "Matière", "Material"), req.Specs.Material},
		{bilingual(fr, "Inclus", "Includes"), req.Specs.Accessories},
		{bilingual(fr, "Manettes", "Controllers"), req.Specs.Controllers},
	}
	var lines []string
	for _, p := range pairs {
		if v := strings.TrimSpace(p.value); v != "" {
			lines = append(lines, "- "+p.label+": "+v)
		}
	}
	if req.Specs.Unlocked {
		lines = append(lines, "- "+bilingual(fr, "Opérateur : désimlocké", "Lock Status: Unlocked"))
	}
	if req.Options.Meetup {
		lines = append(lines, "- "+bilingual(fr, "Remise en main propre : Oui", "Meetup: Yes"))
	}
	if req.Options.Recent {
		lines = append(lines, "- "+bilingual(fr, "Acheté récemment : Oui", "Bought recently: Yes"))
	}
	if req.Options.NeverWorn {
		lines = append(lines, "- "+bilingual(fr, "Jamais porté : Oui", "Never worn: Yes"))
	}
	return strings.Join(lines, "\n")
}

// DescriptionPrompt builds the system and user prompts for the generative
// description path.
func DescriptionPrompt(req Request) (system, user string) {
	fr := isFrench(req.Lang)
	lang := "en"
	if fr {
		lang = "fr"
	}

	system = strings.Join([]string{
		"You write second-hand marketplace listings that sound like real people.",
		"You are an expert visual inspector: analyze the provided image context deeply.",
		"No invented facts. Use only the details provided.",
		"Keep sentences short. Avoid hype and clichés.",
		"Never include contact info or external links.",
		"Write in: " + lang + ".",
	}, " ")

	grade := ParseGrade(req.Condition)
	priceLine := ""
	if req.ResolvedPrice != nil {
		priceLine = fmt.Sprintf("%s: %s %d",
			bilingual(fr, "Prix conseillé", "Suggested price"), req.Currency, *req.ResolvedPrice)
	}

	visual := bilingual(fr, strings.TrimSpace(dedent.Dedent(`
		Analyse l'image pour détecter les défauts visibles (taches, trous, rayures, décoloration).
		- Si tu vois un défaut : mentionne-le clairement.
		- Si l'article semble propre : écris explicitement "Aucune tache ni trou visible" ou "Pas de rayures visibles".`)),
		strings.TrimSpace(dedent.Dedent(`
		Analyze the image for visible flaws (stains, holes, scratches, fading, discoloration).
		- If you see a flaw: describe it clearly.
		- If clean: explicitly state "No visible marks or discoloration" or "No scratches".`)))

	structure := bilingual(fr, strings.TrimSpace(dedent.Dedent(`
		1) Intro brève : ce que c'est et pourquoi je le vends
		2) Détails (modèle, taille, etc.)
		3) ÉTAT & DÉFAUTS : sois très précis sur l'aspect visuel (ex : "Légère usure sur le coin" ou "Aucun défaut visible")
		4) Conclusion (dispo)`)),
		strings.TrimSpace(dedent.Dedent(`
		1) Short intro: what it is + reason for selling
		2) Key details
		3) CONDITION & FLAWS: be specific about visual condition (e.g., "Slight wear on corner" or "No visible marks/fading")
		4) Closing`)))

	hintLines := ""
	if req.Hints.Label != "" {
		hintLines += "\n" + bilingual(fr, "Libellé détecté : ", "Detected label: ") + req.Hints.Label
	}
	if req.Hints.OCRText != "" {
		hintLines += "\n" + bilingual(fr, "Texte OCR : ", "OCR text: ") + req.Hints.OCRText
	}

	parts := []string{
		bilingual(fr, "Rédige une description naturelle pour une annonce.", "Write a natural marketplace description."),
		"",
		"Platform style: " + platformTone(req.Platform, req.Lang),
		"Item: " + req.Title,
		"Condition: " + string(grade) + " (" + grade.Score(req.Lang) + ")",
		priceLine,
		"",
		bilingual(fr, "Caractéristiques :", "Specifications:"),
		specLines(req),
		hintLines,
		"",
		"--- CRITICAL INSTRUCTION: VISUAL CONDITION ---",
		visual,
		"",
		bilingual(fr, "Structure attendue :", "Structure:"),
		structure,
		bilingual(fr, "Contraintes :", "Constraints:"),
		bilingual(fr, "- 3–4 courts paragraphes maximum", "- Maximum 3–4 short paragraphs"),
		bilingual(fr, "- 0 emoji", "- 0 emojis"),
		bilingual(fr, "- Renvoie un JSON strict", "- Return STRICT JSON only"),
		"",
		"JSON shape:",
		strings.TrimSpace(dedent.Dedent(`
			{
			  "description_long": "string (include specific visual condition notes)",
			  "description_short": "string (summary)"
			}`)),
		"",
		exemplar(req.Lang),
	}

	var kept []string
	for _, p := range parts {
		if p != "" || len(kept) > 0 && kept[len(kept)-1] != "" {
			kept = append(kept, p)
		}
	}
	user = strings.Join(kept, "\n")
	return system, user
}
