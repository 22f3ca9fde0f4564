package classification

import "github.com/Veraticus/billfinder/internal/model"

// DefaultRules returns the built-in category rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "Streaming",
			Category: model.CategoryStreaming,
			Regex:    `\b(netflix|hulu|spotify|disney|hbo|paramount|peacock|youtube\s*premium|apple\s*tv|prime\s*video|pandora|audible|sirius|crunchyroll|streaming)`,
			Priority: 90,
		},
		{
			Name:     "Insurance",
			Category: model.CategoryInsurance,
			Regex:    `\b(insurance|geico|state\s*farm|allstate|progressive|lemonade|liberty\s*mutual|premium\s*due)`,
			Priority: 85,
		},
		{
			Name:     "Internet",
			Category: model.CategoryInternet,
			Regex:    `\b(comcast|xfinity|spectrum|fios|broadband|internet|cox\s*comm|frontier|sonic\.net|cable)`,
			Priority: 85,
		},
		{
			Name:     "Telecom",
			Category: model.CategoryTelecom,
			Regex:    `\b(verizon|t-mobile|tmobile|at&t|att\b|sprint|mint\s*mobile|google\s*fi|wireless|telecommunication|cell\s*phone|phone\s*bill)`,
			Priority: 80,
		},
		{
			Name:     "Utilities",
			Category: model.CategoryUtilities,
			Regex:    `\b(pg&e|pge\b|electric|utilit|gas\s*(&|and)\s*electric|water|sewer|trash|waste\s*management|energy|power\s*co)`,
			Priority: 80,
		},
		{
			Name:     "Housing",
			Category: model.CategoryHousing,
			Regex:    `\b(rent\b|mortgage|hoa\b|homeowners\s*assoc|property\s*management|apartment)`,
			Priority: 75,
		},
		{
			Name:     "Loan",
			Category: model.CategoryLoan,
			Regex:    `\b(loan|navient|sallie\s*mae|nelnet|auto\s*finance|student\s*aid)`,
			Priority: 75,
		},
		{
			Name:     "Credit Card",
			Category: model.CategoryCreditCard,
			Regex:    `\b(credit\s*card|card\s*services|american\s*express|amex|capital\s*one|discover\s*card|statement\s*balance|minimum\s*payment)`,
			Priority: 70,
		},
		{
			Name:     "Fitness",
			Category: model.CategoryFitness,
			Regex:    `\b(gym|fitness|peloton|equinox|yoga|crossfit|classpass)`,
			Priority: 70,
		},
		{
			Name:     "Software",
			Category: model.CategorySoftware,
			Regex:    `\b(adobe|microsoft|github|dropbox|icloud|google\s*(one|storage|workspace)|1password|jetbrains|notion|slack|zoom\.us|software)`,
			Priority: 70,
		},
		{
			Name:     "Subscription",
			Category: model.CategorySubscription,
			Regex:    `\b(subscription|membership|renewal|recurring|patreon|amazon\s*prime|auto-?renew)`,
			Priority: 10,
		},
	}
}
