// Package itmo parses abit.itmo.ru master-program pages into program records.
package itmo

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/garyellow/itmo-advisor-go/internal/program"
)

// CSS module class prefixes on the program page. The hashed suffix changes
// between site builds, so matching is by prefix.
const (
	selAbout    = `[class*="AboutProgram_aboutProgram__textWrapper"]`
	selCareer   = `[class*="Career_career__container"]`
	selFAQTitle = `[class*="Accordion_accordion__title"]`
	selFAQItem  = `[class*="Accordion_accordion__item"]`
	selNextData = `script#__NEXT_DATA__`
)

// nextData is the subset of the embedded Next.js payload the parser reads.
type nextData struct {
	Props struct {
		PageProps pageProps `json:"pageProps"`
	} `json:"props"`
}

type pageProps struct {
	APIProgram  *apiProgram  `json:"apiProgram"`
	JSONProgram *jsonProgram `json:"jsonProgram"`
	Team        []teamMember `json:"team"`
}

type apiProgram struct {
	Title         string `json:"title"`
	DirectionCode string `json:"direction_code"`
	AcademicPlan  string `json:"academic_plan"`
	Study         struct {
		Label string `json:"label"`
		Mode  string `json:"mode"`
	} `json:"study"`
	EducationCost struct {
		Russian   any `json:"russian"`
		Foreigner any `json:"foreigner"`
		Year      any `json:"year"`
	} `json:"educationCost"`
	Directions []struct {
		AdmissionQuotas *struct {
			Budget   any `json:"budget"`
			Contract any `json:"contract"`
			Target   any `json:"target_reception"`
			Foreign  any `json:"contract_foreign"`
		} `json:"admission_quotas"`
	} `json:"directions"`
}

type jsonProgram struct {
	About struct {
		Lead string `json:"lead"`
		Desc string `json:"desc"`
	} `json:"about"`
	Career struct {
		Lead string `json:"lead"`
	} `json:"career"`
	FAQ []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"faq"`
	Comments []struct {
		FullName string `json:"fullName"`
		Year     any    `json:"year"`
		Message  string `json:"message"`
	} `json:"comments"`
}

type teamMember struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	MiddleName string `json:"middleName"`
	Degree     string `json:"degree"`
	Positions  []struct {
		Position string `json:"position"`
	} `json:"positions"`
}

// Page is a parsed program page.
type Page struct {
	Record  program.Record
	PlanURL string // academic plan PDF, "" when the page has none
}

// Parse extracts a record from a program page. Sections missing on the page
// are left out of the record.
func Parse(doc *goquery.Document, info program.Info) (Page, error) {
	rec := program.Record{
		program.SectionTitle: info.Name,
		program.SectionURL:   info.URL,
	}

	if s := cleanText(doc.Find(selAbout).First().Text()); s != "" {
		rec[program.SectionDescription] = s
	}
	if s := cleanText(doc.Find(selCareer).First().Text()); s != "" {
		rec[program.SectionCareer] = s
	}
	faq := parseAccordion(doc)

	var props pageProps
	if raw := doc.Find(selNextData).First().Text(); strings.TrimSpace(raw) != "" {
		var nd nextData
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&nd); err != nil {
			return Page{}, fmt.Errorf("decode __NEXT_DATA__: %w", err)
		}
		props = nd.Props.PageProps
	}

	var planURL string
	if api := props.APIProgram; api != nil {
		if title := strings.TrimSpace(api.Title); title != "" && info.Name == "" {
			rec[program.SectionTitle] = title
		}
		setString(rec, program.SectionDirection, api.DirectionCode)
		setString(rec, program.SectionPeriod, api.Study.Label)
		setString(rec, program.SectionForm, api.Study.Mode)
		setValue(rec, program.SectionCostRU, api.EducationCost.Russian)
		setValue(rec, program.SectionCostForeign, api.EducationCost.Foreigner)
		setValue(rec, program.SectionCostYear, api.EducationCost.Year)
		for _, d := range api.Directions {
			if q := d.AdmissionQuotas; q != nil {
				quotas := map[string]any{}
				setValue(quotas, "бюджетные места", q.Budget)
				setValue(quotas, "контрактные места", q.Contract)
				setValue(quotas, "целевое обучение", q.Target)
				setValue(quotas, "контракт для иностранцев", q.Foreign)
				if len(quotas) > 0 {
					rec[program.SectionQuotas] = quotas
				}
			}
		}
		planURL = strings.TrimSpace(api.AcademicPlan)
	}

	if jp := props.JSONProgram; jp != nil {
		if _, ok := rec[program.SectionDescription]; !ok {
			setString(rec, program.SectionDescription, stripHTML(jp.About.Lead))
		}
		setString(rec, program.SectionDetailed, stripHTML(jp.About.Desc))
		if _, ok := rec[program.SectionCareer]; !ok {
			setString(rec, program.SectionCareer, stripHTML(jp.Career.Lead))
		}
		for _, item := range jp.FAQ {
			q, a := cleanText(item.Question), stripHTML(item.Answer)
			if q != "" && a != "" {
				if _, dup := faq[q]; !dup {
					faq[q] = a
				}
			}
		}
		var reviews []any
		for _, c := range jp.Comments {
			if msg := stripHTML(c.Message); msg != "" {
				review := map[string]any{"имя": strings.TrimSpace(c.FullName), "сообщение": msg}
				setValue(review, "год_выпуска", c.Year)
				reviews = append(reviews, review)
			}
		}
		if len(reviews) > 0 {
			rec[program.SectionReviews] = reviews
		}
	}

	if len(faq) > 0 {
		rec[program.SectionFAQ] = faq
	}

	var team []any
	for _, m := range props.Team {
		if line := m.String(); line != "" {
			team = append(team, line)
		}
	}
	if len(team) > 0 {
		rec[program.SectionTeam] = team
	}

	return Page{Record: rec, PlanURL: planURL}, nil
}

// String renders "Фамилия Имя Отчество, степень, должность".
func (m teamMember) String() string {
	name := strings.Join(strings.Fields(m.LastName+" "+m.FirstName+" "+m.MiddleName), " ")
	if name == "" {
		return ""
	}
	parts := []string{name}
	if d := strings.TrimSpace(m.Degree); d != "" {
		parts = append(parts, d)
	}
	for _, p := range m.Positions {
		if s := strings.TrimSpace(p.Position); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// parseAccordion pairs FAQ titles with answer bodies in document order.
func parseAccordion(doc *goquery.Document) map[string]any {
	faq := map[string]any{}
	titles := doc.Find(selFAQTitle)
	items := doc.Find(selFAQItem)
	for i := range min(titles.Length(), items.Length()) {
		q := cleanText(titles.Eq(i).Text())
		a := cleanText(items.Eq(i).Text())
		if q == "" || a == "" {
			continue
		}
		// The item wraps the title too; keep only the answer.
		if rest, ok := strings.CutPrefix(a, q); ok {
			a = strings.TrimSpace(rest)
		}
		if a != "" {
			faq[q] = a
		}
	}
	return faq
}

// stripHTML returns the text content of an HTML fragment.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return cleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s)
	}
	return cleanText(doc.Text())
}

// cleanText collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func setString(m map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		m[key] = value
	}
}

func setValue(m map[string]any, key string, value any) {
	switch v := value.(type) {
	case nil:
	case string:
		setString(m, key, v)
	case json.Number:
		if v != "" {
			m[key] = v
		}
	default:
		m[key] = v
	}
}
