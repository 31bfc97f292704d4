// Package parser provides deterministic extraction of slots from raw utterances.
//
// It is the cheap path in front of the NLU oracle: fixed vocabularies and
// regexes that resolve the common phrasings senior users actually say. The
// parser never fails; fields it cannot resolve are simply absent from the
// result, and anything it cannot classify is left for the oracle.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/BolKhata/BolKhata/internal/models"
)

// Confidence levels assigned to rule-based classifications. The parser only
// claims a kind when a trigger vocabulary matched, so these sit above the
// routing threshold.
const (
	reminderConfidence    = 0.9
	attendanceConfidence  = 0.85
	transactionConfidence = 0.8
	queryConfidence       = 0.8
)

// DefaultCategory is assigned when no category vocabulary matches.
const DefaultCategory = "miscellaneous"

// LogbookCategory is always added when a service provider is detected, so
// household-staff spending stays queryable as one group.
const LogbookCategory = "logbook"

// amountRe matches (currency-prefix)? digits(,digits)*(.cents)? (currency-suffix)?
var amountRe = regexp.MustCompile(`(?i)(?:(?:rs\.?|inr|₹)\s*)?(\d+(?:,\d+)*(?:\.\d{1,2})?)(\s*(?:rupees?|rs\.?|inr|₹))?`)

var expenseKeywords = []string{
	"paid", "pay ", "spent", "bought", "purchased", "purchase", "gave", "bill",
	"expense", "kharcha", "diya", "shopping",
}

var incomeKeywords = []string{
	"received", "got ", "earned", "salary", "pension", "credited", "income",
	"refund", "interest", "dividend", "mila",
}

var paymentMethods = []struct {
	keyword string
	method  string
}{
	{"credit card", "card"},
	{"debit card", "card"},
	{"net banking", "netbanking"},
	{"bank transfer", "netbanking"},
	{"google pay", "upi"},
	{"gpay", "upi"},
	{"phonepe", "upi"},
	{"paytm", "upi"},
	{"upi", "upi"},
	{"cheque", "cheque"},
	{"check ", "cheque"},
	{"card", "card"},
	{"cash", "cash"},
	{"online", "online"},
}

// categoryKeywords maps each category to its trigger vocabulary. Category
// assignment is the union of every matching set.
var categoryKeywords = map[string][]string{
	"groceries": {"grocery", "groceries", "vegetable", "sabzi", "milk", "fruit", "ration", "kirana"},
	"utilities": {"electricity", "power bill", "water bill", "gas", "cylinder", "internet", "wifi", "recharge", "mobile bill", "phone bill", "dth"},
	"medical":   {"medicine", "medicines", "doctor", "hospital", "pharmacy", "chemist", "checkup", "tablets", "injection"},
	"transport": {"auto", "taxi", "cab", "uber", "ola", "petrol", "diesel", "bus", "train", "rickshaw", "metro"},
	"food":      {"restaurant", "tiffin", "lunch", "dinner", "breakfast", "snacks", "tea", "coffee", "sweets", "swiggy", "zomato"},
	"rent":      {"rent"},
	"festival":  {"diwali", "pooja", "puja", "festival", "wedding", "gift"},
}

// providerTypes is the household service provider vocabulary. Aliases map to
// a canonical type so "mali" and "gardener" land in the same logbook.
var providerTypes = []struct {
	keyword   string
	canonical string
}{
	{"maid", "maid"},
	{"kaamwali", "maid"},
	{"bai ", "maid"},
	{"cook", "cook"},
	{"driver", "driver"},
	{"gardener", "gardener"},
	{"mali", "gardener"},
	{"watchman", "watchman"},
	{"guard", "watchman"},
	{"sweeper", "sweeper"},
	{"nurse", "nurse"},
	{"caretaker", "caretaker"},
	{"milkman", "milkman"},
	{"dhobi", "dhobi"},
}

var absentKeywords = []string{
	"didn't come", "did not come", "not come", "absent", "skipped", "on leave",
	"took leave", "holiday", "no show", "nahi aayi", "nahi aaya",
}

var presentKeywords = []string{
	"came", "come today", "present", "turned up", "showed up", "worked today",
	"aayi", "aaya", "is here",
}

// reminderTriggers are checked as prefixes after lowercasing and trimming.
// Order matters: longer phrases first so the whole trigger is stripped.
var reminderTriggers = []string{
	"remind me to",
	"remind me about",
	"remind me",
	"set a reminder to",
	"set a reminder for",
	"set reminder",
	"reminder to",
	"don't let me forget to",
	"do not let me forget to",
}

var queryTriggers = []string{
	"how much", "what did i", "what have i", "show me", "when did", "list my",
	"total spent", "how many times", "kitna", "did i pay", "have i paid",
	"what is my", "summary",
}

var cancelPhrases = []string{
	"cancel", "never mind", "nevermind", "forget it", "leave it", "rehne do",
	"stop it", "no no",
}

var wageFrequencies = []struct {
	keyword   string
	frequency models.WageFrequency
}{
	{"per hour", models.WageHourly},
	{"hourly", models.WageHourly},
	{"an hour", models.WageHourly},
	{"per day", models.WageDaily},
	{"daily", models.WageDaily},
	{"a day", models.WageDaily},
	{"every day", models.WageDaily},
	{"per week", models.WageWeekly},
	{"weekly", models.WageWeekly},
	{"a week", models.WageWeekly},
	{"every week", models.WageWeekly},
	{"per month", models.WageMonthly},
	{"monthly", models.WageMonthly},
	{"a month", models.WageMonthly},
	{"every month", models.WageMonthly},
	{"mahina", models.WageMonthly},
}

// nameStopwords are tokens that can never be a provider's name even when they
// appear right after the provider keyword.
var nameStopwords = map[string]bool{
	"is": true, "was": true, "has": true, "had": true, "came": true, "come": true,
	"didn't": true, "did": true, "not": true, "the": true, "a": true, "an": true,
	"today": true, "yesterday": true, "tomorrow": true, "her": true, "his": true,
	"name": true, "called": true, "for": true, "and": true, "of": true, "to": true,
	"on": true, "in": true, "this": true, "that": true, "present": true,
	"absent": true, "salary": true, "wage": true, "new": true, "our": true,
	"my": true, "paid": true, "pay": true,
}

// Parse extracts slots from text relative to the current wall clock.
func Parse(text string) models.ClassifiedIntent {
	return ParseAt(text, time.Now())
}

// ParseAt extracts slots from text, resolving relative dates against now.
// It returns KindUnknown with zero confidence when no rule fires; the
// coordinator then falls back to the oracle.
func ParseAt(text string, now time.Time) models.ClassifiedIntent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.UnknownIntent()
	}
	lower := strings.ToLower(trimmed)

	if rest, ok := matchReminderTrigger(lower, trimmed); ok {
		return parseReminder(rest, trimmed, now)
	}

	if containsAny(lower, queryTriggers) {
		return parseQuery(trimmed, lower, now)
	}

	provider := DetectProvider(trimmed)
	status := ParseStatus(lower)
	if provider != nil && status != "" && !containsAny(lower, expenseKeywords) {
		return parseAttendance(trimmed, lower, provider, status, now)
	}

	amount := ParseAmount(trimmed)
	txType := detectTransactionType(lower)
	if amount != nil || txType != "" {
		return parseTransaction(trimmed, lower, amount, txType, provider, now)
	}

	return models.UnknownIntent()
}

// IsCancelPhrase reports whether the utterance is a terminal cancel signal
// for whatever draft is in flight.
func IsCancelPhrase(text string) bool {
	lower := strings.TrimSpace(strings.ToLower(text))
	for _, phrase := range cancelPhrases {
		if lower == phrase || strings.HasPrefix(lower, phrase+" ") {
			return true
		}
	}
	return false
}

func parseTransaction(text, lower string, amount *float64, txType models.TransactionType, provider *models.ServiceProviderRef, now time.Time) models.ClassifiedIntent {
	// Paying household staff is an expense even when the word "salary"
	// appears in the utterance.
	if provider != nil && (txType == "" || strings.Contains(lower, "salary")) {
		txType = models.TransactionExpense
	}
	slots := models.Slots{
		Amount:          amount,
		TransactionType: txType,
		Description:     text,
		PaymentMethod:   detectPaymentMethod(lower),
	}
	if provider != nil {
		slots.ProviderType = provider.Type
		slots.ProviderName = provider.Name
	}
	slots.Categories = DetectCategories(lower, provider != nil)
	if phrase := ResolveDate(lower, now); phrase != nil {
		slots.Date = &phrase.Date
	}
	// Wage info sometimes arrives with the payment itself ("maid salary 2000 monthly").
	if freq := ParseFrequency(lower); freq != "" && provider != nil {
		slots.WageFrequency = freq
		slots.WageAmount = amount
	}
	return models.ClassifiedIntent{Kind: models.KindTransaction, Confidence: transactionConfidence, Slots: slots}
}

func parseAttendance(text, lower string, provider *models.ServiceProviderRef, status models.AttendanceStatus, now time.Time) models.ClassifiedIntent {
	slots := models.Slots{
		ProviderType: provider.Type,
		ProviderName: provider.Name,
		Status:       status,
	}
	if phrase := ResolveDate(lower, now); phrase != nil {
		slots.Date = &phrase.Date
	}
	if amount, freq := ParseWage(lower); amount != nil {
		slots.WageAmount = amount
		slots.WageFrequency = freq
	}
	if n := visitsPerWeek(lower); n != nil {
		slots.VisitsPerWeek = n
	}
	return models.ClassifiedIntent{Kind: models.KindAttendance, Confidence: attendanceConfidence, Slots: slots}
}

func parseReminder(rest, original string, now time.Time) models.ClassifiedIntent {
	slots := models.Slots{}
	title := strings.TrimSpace(rest)

	if phrase := ResolveDate(title, now); phrase != nil {
		slots.Date = &phrase.Date
		title = stripPhrase(title, phrase.Matched)
	}
	if amount := ParseAmount(title); amount != nil {
		slots.Amount = amount
	}
	if freq := recurringFrequency(strings.ToLower(original)); freq != "" {
		slots.Recurring = true
		slots.Frequency = freq
	}
	if title == "" {
		title = strings.TrimSpace(original)
	}
	slots.ReminderTitle = title
	return models.ClassifiedIntent{Kind: models.KindReminder, Confidence: reminderConfidence, Slots: slots}
}

func parseQuery(text, lower string, now time.Time) models.ClassifiedIntent {
	slots := models.Slots{Description: text}
	if provider := DetectProvider(text); provider != nil {
		slots.ProviderType = provider.Type
		slots.ProviderName = provider.Name
	}
	slots.Categories = DetectCategories(lower, false)
	if phrase := ResolveDate(lower, now); phrase != nil {
		slots.Date = &phrase.Date
	}
	return models.ClassifiedIntent{Kind: models.KindQuery, Confidence: queryConfidence, Slots: slots}
}

// ParseAmount returns the first monetary amount in text, with commas stripped.
// Digits that are part of ordinals ("5th") or numeric dates ("5/1") are
// skipped so date mentions do not masquerade as amounts.
func ParseAmount(text string) *float64 {
	for _, m := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if isOrdinal(text, end) || isDatePart(text, start, end) {
			continue
		}
		raw := strings.ReplaceAll(text[start:end], ",", "")
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		return &value
	}
	return nil
}

// ParseWage extracts a wage amount and its frequency from text
// ("2000 monthly", "500 per day"). Frequency may be empty when only the
// amount was said.
func ParseWage(text string) (*float64, models.WageFrequency) {
	amount := ParseAmount(text)
	if amount == nil {
		return nil, ""
	}
	return amount, ParseFrequency(text)
}

// ParseFrequency resolves a wage/payment frequency keyword.
func ParseFrequency(text string) models.WageFrequency {
	lower := strings.ToLower(text)
	for _, wf := range wageFrequencies {
		if strings.Contains(lower, wf.keyword) {
			return wf.frequency
		}
	}
	return ""
}

// ParseStatus resolves an attendance status keyword. Absence keywords win
// because "didn't come" contains "come".
func ParseStatus(text string) models.AttendanceStatus {
	lower := strings.ToLower(text)
	if containsAny(lower, absentKeywords) {
		return models.AttendanceAbsent
	}
	if containsAny(lower, presentKeywords) {
		return models.AttendancePresent
	}
	return ""
}

// ParseName extracts a person's name from a short answer like "Lakshmi",
// "her name is Lakshmi" or "it's Ram Singh". Returns empty when the text does
// not look like a name.
func ParseName(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range []string{"her name is", "his name is", "the name is", "name is", "she is called", "he is called", "it's", "it is", "call her", "call him"} {
		if strings.HasPrefix(lower, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 3 {
		return ""
	}
	var parts []string
	for _, w := range words {
		w = strings.Trim(w, ".,!?")
		if w == "" || nameStopwords[strings.ToLower(w)] || !isAlphabetic(w) {
			return ""
		}
		parts = append(parts, titleCase(w))
	}
	return strings.Join(parts, " ")
}

// DetectProvider finds a service provider mention and, when a plausible name
// sits next to the keyword, the provider's name as well.
func DetectProvider(text string) *models.ServiceProviderRef {
	lower := strings.ToLower(text)
	for _, pt := range providerTypes {
		keyword := strings.TrimSpace(pt.keyword)
		idx := indexOfWord(lower, keyword)
		if idx < 0 {
			continue
		}
		ref := &models.ServiceProviderRef{Type: pt.canonical}
		if name := adjacentName(text, idx, len(keyword)); name != "" {
			ref.Name = name
		}
		return ref
	}
	return nil
}

// DetectCategories returns the union of all matching category keyword sets.
// The logbook category is always added when a provider was detected; the
// default category is used when nothing matched.
func DetectCategories(lower string, hasProvider bool) []string {
	var matched []string
	for _, category := range []string{"groceries", "utilities", "medical", "transport", "food", "rent", "festival"} {
		if containsAny(lower, categoryKeywords[category]) {
			matched = append(matched, category)
		}
	}
	if hasProvider {
		matched = append(matched, LogbookCategory)
	}
	if len(matched) == 0 {
		matched = []string{DefaultCategory}
	}
	return matched
}

func detectPaymentMethod(lower string) string {
	for _, pm := range paymentMethods {
		if strings.Contains(lower, pm.keyword) {
			return pm.method
		}
	}
	return ""
}

func detectTransactionType(lower string) models.TransactionType {
	if containsAny(lower, incomeKeywords) {
		return models.TransactionIncome
	}
	if containsAny(lower, expenseKeywords) {
		return models.TransactionExpense
	}
	return ""
}

func matchReminderTrigger(lower, original string) (rest string, ok bool) {
	for _, t := range reminderTriggers {
		idx := strings.Index(lower, t)
		if idx < 0 {
			continue
		}
		return strings.TrimSpace(original[idx+len(t):]), true
	}
	return "", false
}

func recurringFrequency(lower string) string {
	switch {
	case strings.Contains(lower, "every day") || strings.Contains(lower, "daily"):
		return "daily"
	case strings.Contains(lower, "every week") || strings.Contains(lower, "weekly"):
		return "weekly"
	case strings.Contains(lower, "every month") || strings.Contains(lower, "monthly"):
		return "monthly"
	case strings.Contains(lower, "every year") || strings.Contains(lower, "yearly") || strings.Contains(lower, "annually"):
		return "yearly"
	default:
		return ""
	}
}

// visitsPerWeek resolves phrases like "three times a week" or "twice a week".
func visitsPerWeek(lower string) *int {
	idx := strings.Index(lower, "times a week")
	if idx < 0 {
		idx = strings.Index(lower, "times per week")
	}
	if idx >= 0 {
		return ParseCount(lower[:idx])
	}
	for word, n := range map[string]int{"once a week": 1, "twice a week": 2, "thrice a week": 3} {
		if strings.Contains(lower, word) {
			v := n
			return &v
		}
	}
	return nil
}

// adjacentName inspects the token right after the provider keyword and, if
// that fails, the token right before it ("maid Lakshmi" / "Lakshmi the maid").
func adjacentName(text string, keywordIdx, keywordLen int) string {
	after := strings.Fields(text[keywordIdx+keywordLen:])
	if len(after) > 0 {
		if name := singleNameToken(after[0]); name != "" {
			return name
		}
	}
	before := strings.Fields(text[:keywordIdx])
	if len(before) > 0 {
		// Skip articles: "Lakshmi the maid".
		candidate := before[len(before)-1]
		if strings.EqualFold(candidate, "the") || strings.EqualFold(candidate, "our") {
			if len(before) > 1 {
				candidate = before[len(before)-2]
			} else {
				return ""
			}
		}
		return singleNameToken(candidate)
	}
	return ""
}

// singleNameToken accepts one capitalized alphabetic token as a name.
func singleNameToken(token string) string {
	token = strings.Trim(token, ".,!?")
	if token == "" || nameStopwords[strings.ToLower(token)] || !isAlphabetic(token) {
		return ""
	}
	r := []rune(token)
	if !unicode.IsUpper(r[0]) {
		return ""
	}
	return token
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// indexOfWord finds keyword as a whole word, so "guard" does not fire inside
// "safeguard".
func indexOfWord(text, keyword string) int {
	idx := 0
	for {
		pos := strings.Index(text[idx:], keyword)
		if pos < 0 {
			return -1
		}
		start := idx + pos
		end := start + len(keyword)
		beforeOK := start == 0 || !unicode.IsLetter(rune(text[start-1]))
		afterOK := end >= len(text) || !unicode.IsLetter(rune(text[end]))
		if beforeOK && afterOK {
			return start
		}
		idx = end
	}
}

func isOrdinal(text string, end int) bool {
	rest := strings.ToLower(text[end:])
	return strings.HasPrefix(rest, "st") || strings.HasPrefix(rest, "nd") ||
		strings.HasPrefix(rest, "rd") || strings.HasPrefix(rest, "th")
}

func isDatePart(text string, start, end int) bool {
	if start > 0 && (text[start-1] == '/' || text[start-1] == '-') {
		return true
	}
	if end < len(text) && (text[end] == '/' || text[end] == '-') {
		return true
	}
	return false
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}

func titleCase(s string) string {
	r := []rune(s)
	return string(unicode.ToUpper(r[0])) + string(r[1:])
}

// stripPhrase removes the matched date phrase and any dangling connective
// ("on", "by") left in front of it.
func stripPhrase(text, phrase string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(phrase))
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	before := strings.TrimSpace(text[:idx])
	after := strings.TrimSpace(text[idx+len(phrase):])
	for _, conn := range []string{"on", "by", "at"} {
		if strings.HasSuffix(strings.ToLower(before), " "+conn) {
			before = strings.TrimSpace(before[:len(before)-len(conn)])
			break
		}
		if strings.EqualFold(before, conn) {
			before = ""
			break
		}
	}
	if before == "" {
		return after
	}
	if after == "" {
		return before
	}
	return before + " " + after
}
