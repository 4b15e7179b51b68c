// Package feed maps the scoring provider's XML results feed onto nested
// competition records. The JSON tags are the public shape of /data and
// must not change.
package feed

// RankNotAvailable is used when a competitor or judge has no rank yet.
const RankNotAvailable = "N/A"

// Result item types kept from a competitor's Results list.
const (
	ResultDressage      = "ritDressage"
	ResultDressageTotal = "ritDressageTotal"
)

// Competition is one class of the event with its officials and standings.
type Competition struct {
	MID         string       `json:"mId"`
	Identifier  string       `json:"identifier"`
	OrgID       string       `json:"orgId"`
	Name        string       `json:"name"`
	StartTime   string       `json:"startTime"`
	ClassNumber string       `json:"classNumber"`
	Officials   []Official   `json:"Officials"`
	Competitors []Competitor `json:"Competitors"`
}

// Official is a judge seated at a position (C, E, H, ...).
type Official struct {
	JudgeBy  string `json:"judgeBy"`
	FullName string `json:"fullName"`
}

// Competitor is one rider with rank, score breakdown and horses.
type Competitor struct {
	ID              string           `json:"id"`
	StartingNumber  string           `json:"startingNumber"`
	Rank            string           `json:"rank"`
	FullName        string           `json:"fullName"`
	OrgName         string           `json:"orgName"`
	FlagImage       string           `json:"flag_image"`
	DressageResults []DressageResult `json:"DressageResults"`
	TotalResults    []TotalResult    `json:"TotalResults"`
	Gespanne        []Horse          `json:"Gespanne"`
}

// DressageResult is a single judge's mark for a competitor.
type DressageResult struct {
	ResultItemType string `json:"resultItemType"`
	JudgeBy        string `json:"judgeBy"`
	Score          string `json:"score"`
	Procent        string `json:"procent"`
	Rank           string `json:"rank"`
}

// TotalResult is the aggregate over all judges.
type TotalResult struct {
	ResultItemType string `json:"resultItemType"`
	Score          string `json:"score"`
	Procent        string `json:"procent"`
	PenaltyPoints  string `json:"penaltyPoints"`
}

// Horse is one entry of a competitor's Gespann (horse/rider pairing).
type Horse struct {
	HorseName string `json:"HorseName"`
	BornYear  string `json:"bornYear"`
	Sex       string `json:"sex"`
}

// JudgeResult returns the dressage mark given by the judge at position
// judgeBy, or false if that judge has not scored the competitor.
func (c Competitor) JudgeResult(judgeBy string) (DressageResult, bool) {
	for _, r := range c.DressageResults {
		if r.JudgeBy == judgeBy {
			return r, true
		}
	}
	return DressageResult{}, false
}

// Total returns the first total result, if any.
func (c Competitor) Total() (TotalResult, bool) {
	if len(c.TotalResults) == 0 {
		return TotalResult{}, false
	}
	return c.TotalResults[0], true
}
