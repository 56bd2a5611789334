package knowledge

// DefaultCorpus returns the built-in company policy content. The store takes
// a copy, so callers may extend the result before constructing a Store.
func DefaultCorpus() map[Kind][]Entry {
	return map[Kind][]Entry{
		KindFinance: {
			{
				Topic:    "expense_policy",
				Keywords: []string{"expenses", "receipt", "claim", "purchase", "reimbursement"},
				Content: "Expenses should be as economical and efficient as possible. " +
					"Typically you purchase items yourself and expense them back with the receipt. " +
					"If you're unsure whether a purchase would be covered, ask your People Leader " +
					"or Finance Partner. People Leaders should ensure expense claims have receipts " +
					"attached and approve them in a timely manner — typically within 2 weeks.",
			},
			{
				Topic:    "claiming_expenses",
				Keywords: []string{"navan", "receipt", "submit", "reimbursement"},
				Content: "Enter your expenses into Navan with a full receipt unless absolutely not possible. " +
					"Guides are available on Navan to help you. " +
					"If you need help, message your Finance Partner.",
			},
			{
				Topic:    "entertainment",
				Keywords: []string{"lunch", "client", "alcohol", "meal", "dinner"},
				Content: "Lunch or entertaining should typically only be expensed if it's a client event. " +
					"Alcohol may be part of these expenses but please use your best judgement. " +
					"Non-reimbursable items include: laundry/dry-cleaning, toiletries, mini-bar, " +
					"newspapers, movies/videos, parking fines or other fines, damage to personal " +
					"vehicles, loss/theft of goods, and any personal elements of expenditure.",
			},
			{
				Topic:    "mileage_rates",
				Keywords: []string{"mileage", "car", "mile", "driving", "motorcycle", "cycling"},
				Content: "UK private car: 45p/mile for the first 10,000 miles, 25p/mile thereafter. " +
					"Motorcycles: 24p/mile. Cycling: 20p/mile. " +
					"US private car/van/pickup: 65.5 cents per mile (from 1 Jan 2023). " +
					"These rates are set by HMRC (UK) / IRS (US), not Kaluza.",
			},
			{
				Topic:    "car_hire",
				Keywords: []string{"rental", "parking", "hire"},
				Content: "Car hire is allowed for journeys over 100 miles and if more than one " +
					"employee is travelling. Parking costs on business travel can be claimed.",
			},
			{
				Topic:    "taxis",
				Keywords: []string{"taxi", "uber", "cab", "transport"},
				Content: "Always try to use public transport first. Taxi fares may only be claimed " +
					"where no suitable public transport is available, when travelling in an unsafe " +
					"area, when public transport is infrequent, or where there is a business cost " +
					"saving. You'll need a receipt.",
			},
			{
				Topic:    "interview_expenses",
				Keywords: []string{"interview", "candidate", "candidates"},
				Content: "Candidates travelling over 2 hours to a Kaluza interview may claim up to " +
					"£100 in expenses with receipts. Candidates provide bank details to the " +
					"Talent Acquisition team who arrange payment via Finance.",
			},
		},
		KindNavan: {
			{
				Topic:    "booking_process",
				Keywords: []string{"book", "booking", "navan", "rail", "trainline", "approval"},
				Content: "Use the Navan booking platform for flights and accommodation. " +
					"For rail travel, use Trainline or another provider for split-ticketing prices " +
					"(this will move to Navan once available). " +
					"When booking taxis, use a reputable firm. " +
					"For in-country travel, check with your People Leader then book. " +
					"For international travel, get approval from your HoD/Director first.",
			},
			{
				Topic:    "flight_booking",
				Keywords: []string{"flight", "flights", "skyscanner", "concierge"},
				Content: "Review prices in Navan and compare with Skyscanner. If prices are similar " +
					"and flight times align, book through Navan. " +
					"If variance is high (>£50 per flight) or right times aren't available, " +
					"contact Navan directly via chat or telephone for concierge service.",
			},
			{
				Topic:    "flight_class",
				Keywords: []string{"economy", "business", "premium", "upgrade", "baggage", "class"},
				Content: "Class of travel policy:\n" +
					"- Up to 5 hours: Economy for all employees.\n" +
					"- Up to 12 hours: Economy below Director level; Premium Economy for Directors+.\n" +
					"- Over 12 hours: Premium Economy below VP; Business Class for VPs and above.\n" +
					"Upgrades at no cost to the company are fine. Self-funded upgrades are allowed. " +
					"Only excess baggage for Kaluza business items is refunded.",
			},
			{
				Topic:    "flight_rest_policy",
				Keywords: []string{"rest", "toil", "jetlag", "timezone", "lieu"},
				Content: "Post-flight rest expectations:\n" +
					"- Up to 5 hours: meetings within 1–2 hours of landing.\n" +
					"- Up to 12 hours (overnight / up to 3 time zones): 4 hours rest before meetings.\n" +
					"- Over 12 hours: no meetings until at least 8 hours after landing; " +
					"crossing 4+ time zones: 24 hours rest.\n\n" +
					"Time-off-in-lieu for non-working-hours travel (return trip):\n" +
					"- Up to 5 hours: take back time as TOIL.\n" +
					"- Up to 12 hours: one day off in lieu.\n" +
					"- Over 12 hours: two days off in lieu.",
			},
			{
				Topic:    "accommodation",
				Keywords: []string{"hotel", "hotels", "overnight", "stay", "rate", "meal"},
				Content: "Book overnight stays through Navan. Choose a moderate business-class hotel " +
					"near your meeting location at the cheapest available rate.\n" +
					"Rate guidelines: up to £150/night inner city (e.g. Bristol), " +
					"up to £200/night London.\n" +
					"Meal guideline while staying overnight: max £25/€30/$30 per day per person.\n\n" +
					"Corporate rate hotels are available in London (Hoxton Shepherds Bush £180, " +
					"DoubleTree Hyde Park £195 inc breakfast, Ruby Zoe 12% off), " +
					"Edinburgh (Yotel 20% off, Mercure Princes St £110 inc breakfast), " +
					"Bristol (Leonardo £100–£110, DoubleTree £135–£150 inc breakfast), " +
					"Melbourne (Savoy $220, Next Hotel 15% off, Movenpick $270 inc breakfast), " +
					"Washington DC (Canopy by Hilton 12% off), " +
					"and Lisbon (MAMA Lisboa seasonal rates from €95).",
			},
			{
				Topic:    "travel_insurance",
				Keywords: []string{"insurance", "aon", "claim", "emergency", "medical"},
				Content: "Kaluza holds a group Personal Accident and Travel (PAT) insurance policy " +
					"through AON UK Limited under Energy Transition Holdings Ltd (Ovo Group). " +
					"Insurers: Chubb (45%), AIG (45%), Zurich (10%). " +
					"All employees travelling abroad for short-term work are covered. " +
					"No exclusions for pre-existing conditions or allergies. " +
					"Emergency line: +44 (0)207 173 7797. " +
					"Policy number: P25PATPTP04121. " +
					"Claims email: aum.claims@aon.co.uk. " +
					"For pre-existing conditions, get written email confirmation from AON before travel.",
			},
			{
				Topic:    "rail",
				Keywords: []string{"train", "railcard", "oyster", "contactless"},
				Content: "Always book standard class, as far ahead as possible for cheapest fares. " +
					"You can claim the annual cost of a railcard if you regularly expense train " +
					"travel (not commuting to your core office). " +
					"OYSTER/Contactless: attach a breakdown of all journeys to your expense claim.",
			},
			{
				Topic:    "overseas_travel",
				Keywords: []string{"international", "visa", "abroad", "currency", "overseas"},
				Content: "International travel must be approved by your HoD/Director. " +
					"Visa costs, travel insurance, foreign currency exchange charges, and GPS hire " +
					"with rental cars can be claimed. " +
					"Ensure you have the right to work in the destination country (check Working " +
					"Abroad Policy) and all necessary documentation (e.g. VISAs) before booking. " +
					"Contact your People Partner with questions.",
			},
			{
				Topic:    "sustainability",
				Keywords: []string{"environment", "carbon", "video", "sustainable"},
				Content: "Kaluza is committed to reducing the environmental impact of business travel. " +
					"Where possible, replace face-to-face meetings with video conferencing. " +
					"If travel is necessary, combine meetings into one trip and use the most " +
					"sustainable transport feasible.",
			},
			{
				Topic:    "duty_of_care",
				Keywords: []string{"emergency", "safety", "contact", "location"},
				Content: "Always inform your People Leader (or a team member if they're away) of your " +
					"overnight location. Schedule travel times into your calendar and share with " +
					"your People Leader. Have emergency contacts saved in your phone. " +
					"In an emergency, contact local emergency services first, then notify your " +
					"People Leader and People Partner.",
			},
			{
				Topic:    "medical_travel",
				Keywords: []string{"health", "doctor", "medical", "condition"},
				Content: "Employees with health issues should consult their healthcare provider before " +
					"long-haul travel (especially flights over 5 hours). A doctor's note can be " +
					"provided to your People Partner for specific travel accommodations. " +
					"Notify your People Leader and People Partner of health conditions early. " +
					"Alternative travel dates may be requested and approved where health conditions " +
					"require extra recovery time.",
			},
		},
	}
}
