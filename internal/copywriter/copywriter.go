package copywriter

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/palma21/referral-drip-bot/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tag names a placeholder slot in a template
type Tag string

const (
	TagHey        Tag = "hey"
	TagDelivers   Tag = "delivers"
	TagMore       Tag = "more"
	TagGet        Tag = "get"
	TagFirstOrder Tag = "first_order"
	TagUseCode    Tag = "use_code"
	TagAtCheckout Tag = "at_checkout"
	TagHopeHelps  Tag = "hope_helps"
	TagLinkPhrase Tag = "link_phrase"
	TagBrand      Tag = "brand"
	TagCode       Tag = "code"
	TagLink       Tag = "link"
	TagDiscount   Tag = "discount"
)

// Disclaimer is appended as its own paragraph when requested
const Disclaimer = "Mods: if this isn’t allowed here, please remove — no worries."

const (
	emojiLow    = "🙂"
	emojiNormal = "🚚"

	seedProbability      = 0.4
	emojiLowProbability  = 0.35
	emojiNormProbability = 0.2
)

var synonyms = map[Tag][]string{
	TagHey:        {"Hey", "Hi", "Hello", "Quick heads-up:", "FYI:"},
	TagDelivers:   {"delivers", "brings", "drops off"},
	TagMore:       {"more", "other essentials", "etc."},
	TagGet:        {"Get", "Grab", "Take"},
	TagFirstOrder: {"first order", "first purchase", "first delivery"},
	TagUseCode:    {"use my code", "apply code", "use the code"},
	TagAtCheckout: {"at checkout", "at sign-up", "when you order"},
	TagHopeHelps:  {"hope this helps", "hope this is useful", "might help someone"},
	TagLinkPhrase: {"Here’s the link", "Direct link", "Sign-up link", "My link"},
}

var ctaTemplates = []string{
	"{get} {discount}% off your {first_order} — {use_code} {code} {at_checkout}.",
	"Score {discount}% off your {first_order} with code {code} {at_checkout}.",
	"{get} {discount}% off: code {code} {at_checkout}.",
}

var openerTemplates = []string{
	"{hey}! {brand} {delivers} alcohol, food, drinks and {more} in ~30 minutes.",
	"{hey}! If you’re trying {brand} for the first time, this might help.",
	"{hey}! Sharing a {brand} referral that helped me recently:",
}

var closerTemplates = []string{
	"{hope_helps}. {link_phrase}: {link}",
	"{link_phrase}: {link} — {hope_helps}.",
	"{link} ({hope_helps}).",
}

// Input holds everything a rendered message depends on
type Input struct {
	Seed       string
	Brand      string
	Code       string
	Link       string
	Discount   int
	Tone       models.Tone
	EmojiLevel models.EmojiLevel
	Disclaimer bool
}

// InputFromConfig maps a run configuration onto renderer input
func InputFromConfig(cfg models.RunConfig) Input {
	return Input{
		Seed:       cfg.SeedMessage(),
		Brand:      cfg.Brand,
		Code:       cfg.RefCode,
		Link:       cfg.RefLink,
		Discount:   cfg.Discount,
		Tone:       cfg.Tone,
		EmojiLevel: cfg.EmojiLevel,
		Disclaimer: cfg.DisclaimerEnabled(),
	}
}

// Renderer produces varied messages from a seeded random source.
// It is not safe for concurrent use; each run owns its own.
type Renderer struct {
	rng   *rand.Rand
	caser cases.Caser
}

// NewRenderer creates a renderer drawing from rng
func NewRenderer(rng *rand.Rand) *Renderer {
	return &Renderer{rng: rng, caser: cases.Title(language.English)}
}

// Render builds one message variant
func (r *Renderer) Render(in Input) string {
	msg, _ := r.compose(in)
	return msg
}

// compose returns the message and the call-to-action sentence it contains
func (r *Renderer) compose(in Input) (string, string) {
	var parts []string

	seed := strings.TrimSpace(in.Seed)
	if r.rng.Float64() < seedProbability && seed != "" {
		parts = append(parts, seed)
	}

	opener := r.fill(r.pick(openerTemplates), in)
	cta := r.fill(r.pick(ctaTemplates), in)
	closer := r.fill(r.pick(closerTemplates), in)

	var body string
	switch in.Tone {
	case models.ToneConcise:
		body = cta + "\n\n" + in.Link
	case models.ToneHelpful:
		body = opener + "\n\n" + cta + "\n\nIf you don’t see the code field, sign up first, then add it " +
			r.spin(TagAtCheckout) + ". " + closer
	default:
		body = opener + "\n\n" + cta + "\n\n" + closer
	}
	parts = append(parts, body)

	if in.Disclaimer {
		parts = append(parts, Disclaimer)
	}

	final := strings.Join(parts, "\n\n")

	switch in.EmojiLevel {
	case models.EmojiNone:
	case models.EmojiLow:
		if r.rng.Float64() < emojiLowProbability {
			final += " " + emojiLow
		}
	default:
		if r.rng.Float64() < emojiNormProbability {
			final += " " + emojiNormal
		}
	}

	return strings.TrimSpace(final), cta
}

func (r *Renderer) pick(options []string) string {
	return options[r.rng.Intn(len(options))]
}

func (r *Renderer) spin(tag Tag) string {
	options, ok := synonyms[tag]
	if !ok {
		return string(tag)
	}
	return r.pick(options)
}

// fill resolves every placeholder in tmpl in a single substitution pass.
// Synonym slots are drawn independently per template.
func (r *Renderer) fill(tmpl string, in Input) string {
	brand := r.caser.String(strings.TrimSpace(in.Brand))
	if brand == "" {
		brand = "This service"
	}

	values := map[Tag]string{
		TagBrand:    brand,
		TagCode:     in.Code,
		TagLink:     in.Link,
		TagDiscount: strconv.Itoa(in.Discount),
	}

	var out strings.Builder
	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			break
		}
		out.WriteString(tmpl[:open])

		tag := Tag(tmpl[open+1 : open+end])
		if v, ok := values[tag]; ok {
			out.WriteString(v)
		} else {
			out.WriteString(r.spin(tag))
		}
		tmpl = tmpl[open+end+1:]
	}
	out.WriteString(tmpl)

	return out.String()
}
