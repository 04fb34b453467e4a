// Package economy implements the currency and level system: Sparks as XP,
// Essence from correct answers, Energy from level-ups and Blocks minted once
// per sense retained for good. Every balance change flows through the
// append-only ledger.
package economy

// Currency names a ledger currency.
type Currency string

const (
	CurrencySparks  Currency = "sparks"
	CurrencyEssence Currency = "essence"
	CurrencyEnergy  Currency = "energy"
	CurrencyBlocks  Currency = "blocks"
)

// Ledger sources. Award tables below key off these.
const (
	SourceViewWord       = "view_word"
	SourceStartMCQ       = "start_mcq"
	SourceMCQWrong       = "mcq_wrong"
	SourceMCQCorrect     = "mcq_correct"
	SourceMCQFastCorrect = "mcq_fast_correct"
	SourceReviewStart    = "review_start"
	SourceReviewPass     = "review_pass"
	SourceWordHollow     = "word_hollow"
	SourceWordSolid      = "word_solid"
	SourceDailyLogin     = "daily_login"
	SourceStreak7        = "streak_7"
	SourceStreak30       = "streak_30"
	SourceLevelUp        = "level_up"
)

// sparkAwards is the full Sparks price list. Sparks are XP: every grant
// raises total_xp by the same amount.
var sparkAwards = map[string]int64{
	SourceViewWord:       1,
	SourceStartMCQ:       2,
	SourceMCQWrong:       1,
	SourceMCQCorrect:     5,
	SourceMCQFastCorrect: 8,
	SourceReviewStart:    2,
	SourceReviewPass:     3,
	SourceWordHollow:     5,
	SourceWordSolid:      10,
	SourceDailyLogin:     10,
	SourceStreak7:        50,
	SourceStreak30:       200,
}

// essenceAwards pays out on correct answers only.
var essenceAwards = map[string]int64{
	SourceMCQCorrect:     1,
	SourceMCQFastCorrect: 2,
	SourceReviewPass:     1,
}

// SparkAward returns the Sparks amount for a source, or 0 for an unknown one.
func SparkAward(source string) int64 { return sparkAwards[source] }

// EssenceAward returns the Essence amount for a source, or 0 if the source
// earns none.
func EssenceAward(source string) int64 { return essenceAwards[source] }
