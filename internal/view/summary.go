package view

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/roach88/bountyboard/internal/domain"
)

// Summary is the renderable digest of a bounty handed to adapters.
type Summary struct {
	Title    string
	Status   domain.Status
	Reward   string
	Paid     bool
	Claimant string
	DueAt    string
	Children int
	Limit    int
	Tags     []string
}

// Summarize builds the digest of b.
func Summarize(b *domain.Bounty) Summary {
	s := Summary{
		Title:    b.Title,
		Status:   b.Status,
		Reward:   FormatReward(b.Reward),
		Paid:     b.PaidStatus == domain.Paid,
		Children: len(b.ChildrenIDs),
		Tags:     b.Tags,
	}
	if b.ClaimedBy != nil {
		s.Claimant = displayName(*b.ClaimedBy)
	}
	if b.DueAt != nil {
		s.DueAt = b.DueAt.UTC().Format("2006-01-02")
	}
	if b.ClaimLimit != nil {
		s.Limit = *b.ClaimLimit
	}
	return s
}

// Text renders s as plain text lines.
func (s Summary) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", s.Title)
	fmt.Fprintf(&sb, "status: %s", statusLabel(s.Status))
	if s.Paid {
		sb.WriteString(" (paid)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "reward: %s\n", s.Reward)
	if s.Claimant != "" {
		fmt.Fprintf(&sb, "claimed by: %s\n", s.Claimant)
	}
	if s.DueAt != "" {
		fmt.Fprintf(&sb, "due: %s\n", s.DueAt)
	}
	if s.Limit > 0 {
		fmt.Fprintf(&sb, "claims: %d/%d\n", s.Children, s.Limit)
	} else if s.Children > 0 {
		fmt.Fprintf(&sb, "claims: %d\n", s.Children)
	}
	if len(s.Tags) > 0 {
		fmt.Fprintf(&sb, "tags: %s\n", strings.Join(s.Tags, ", "))
	}
	return sb.String()
}

var printer = message.NewPrinter(language.English)

// FormatReward renders a reward for display. ISO 4217 currencies are shown
// with their code and at least their standard number of fraction digits;
// anything else (tokens, points) falls back to the plain fixed-point value.
// The amount is formatted from its exact decimal value.
func FormatReward(r domain.Reward) string {
	unit, err := currency.ParseISO(r.Currency)
	if err != nil {
		return r.Decimal().StringFixed(r.Scale) + " " + r.Currency
	}
	digits, _ := currency.Standard.Rounding(unit)
	if int(r.Scale) > digits {
		digits = int(r.Scale)
	}
	return unit.String() + " " + groupThousands(r.Decimal().StringFixed(int32(digits)))
}

// groupThousands inserts locale grouping into the integer part of a
// fixed-point string and leaves the fraction untouched.
func groupThousands(fixed string) string {
	whole, frac, hasFrac := strings.Cut(fixed, ".")
	sign := ""
	if strings.HasPrefix(whole, "-") {
		sign, whole = "-", whole[1:]
	}
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		whole = printer.Sprint(number.Decimal(n))
	}
	if hasFrac {
		return sign + whole + "." + frac
	}
	return sign + whole
}

func statusLabel(s domain.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func displayName(a domain.ActorRef) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
