package router

// Intent names the business meaning of a routed payload.
type Intent string

const (
	IntentPricingSuggestion   Intent = "pricing_suggestion"
	IntentManagerResponse     Intent = "manager_response"
	IntentChartData           Intent = "chart_data"
	IntentGeneralChat         Intent = "general_chat"
	IntentDecision            Intent = "decision"
	IntentContractData        Intent = "contract_data"
	IntentRfpData             Intent = "rfp_data"
	IntentRfqData             Intent = "rfq_data"
	IntentExternalVendors     Intent = "external_vendors"
	IntentInternalVendorQuery Intent = "internal_vendor_query"
	IntentUnknown             Intent = "unknown"
)

// Event is one routed payload. Exactly one variant is produced per payload.
type Event interface {
	Intent() Intent
	sealed()
}

// Narration carries the free-text message some agents send alongside
// structured data.
type Narration struct {
	Message string `json:"message,omitempty"`
}

func (n *Narration) narrate(msg string) { n.Message = msg }

type narrator interface {
	narrate(string)
}

type PricingSuggestion struct {
	Narration
	Price     float64        `json:"price" mapstructure:"price"`
	Currency  string         `json:"currency,omitempty" mapstructure:"currency"`
	Rationale string         `json:"rationale,omitempty" mapstructure:"rationale"`
	Details   map[string]any `json:"details,omitempty" mapstructure:"-"`
}

type ManagerResponse struct {
	Narration
	Text       string   `json:"text"`
	AgentCalls []string `json:"agent_calls,omitempty"`
}

// ChartData is a visualization request. ChartType is one of pie, bar,
// line or text.
type ChartData struct {
	Narration
	ChartType string   `json:"chart_type" mapstructure:"chart_type"`
	Title     string   `json:"title,omitempty" mapstructure:"title"`
	Labels    []string `json:"labels,omitempty" mapstructure:"labels"`
	Data      []any    `json:"data,omitempty" mapstructure:"data"`
}

type GeneralChat struct {
	Narration
	Text string `json:"text"`
}

// Decision is the decision maker's pick of the next step, normalized to an
// upper snake case label such as RFQ_GENERATION.
type Decision struct {
	Narration
	Label string `json:"label"`
}

type ContractData struct {
	Narration
	Title         string         `json:"title,omitempty" mapstructure:"contract_title"`
	Parties       map[string]any `json:"parties" mapstructure:"parties"`
	Scope         map[string]any `json:"scope" mapstructure:"scope"`
	Fees          map[string]any `json:"fees" mapstructure:"fees"`
	Terms         map[string]any `json:"terms,omitempty" mapstructure:"terms"`
	EffectiveDate string         `json:"effective_date,omitempty" mapstructure:"effective_date"`
}

// RfpData has its own customer-facing message and never takes the generic
// narration.
type RfpData struct {
	ProjectTitle          string   `json:"project_title" mapstructure:"project_title"`
	Scope                 any      `json:"scope" mapstructure:"scope"`
	Background            string   `json:"background,omitempty" mapstructure:"background"`
	Timeline              any      `json:"timeline,omitempty" mapstructure:"timeline"`
	Budget                any      `json:"budget,omitempty" mapstructure:"budget"`
	SubmissionDeadline    string   `json:"submission_deadline,omitempty" mapstructure:"submission_deadline"`
	MandatoryRequirements []string `json:"mandatory_requirements" mapstructure:"-"`
	CustomerMessage       string   `json:"customer_message,omitempty" mapstructure:"customer_message"`
}

type ContactPerson struct {
	Name     string `json:"name,omitempty" mapstructure:"name"`
	Email    string `json:"email,omitempty" mapstructure:"email"`
	Phone    string `json:"phone,omitempty" mapstructure:"phone"`
	Position string `json:"position,omitempty" mapstructure:"position"`
}

// AdditionalField is a dynamic RFQ field. FieldValue keeps whatever JSON
// type the agent produced.
type AdditionalField struct {
	FieldName  string `json:"field_name" mapstructure:"field_name"`
	FieldValue any    `json:"field_value" mapstructure:"field_value"`
	FieldType  string `json:"field_type" mapstructure:"field_type"`
}

type RfqData struct {
	Narration
	RfqID            string            `json:"rfq_id,omitempty" mapstructure:"rfq_id"`
	OrganizationName string            `json:"organization_name,omitempty" mapstructure:"organization_name"`
	ProcurementType  string            `json:"procurement_type,omitempty" mapstructure:"procurement_type"`
	BudgetRange      any               `json:"budget_range,omitempty" mapstructure:"budget_range"`
	Description      string            `json:"description,omitempty" mapstructure:"description"`
	Deadline         string            `json:"deadline,omitempty" mapstructure:"deadline"`
	ContactPerson    ContactPerson     `json:"contact_person" mapstructure:"contact_person"`
	AdditionalFields []AdditionalField `json:"additional_fields" mapstructure:"additional_fields"`
}

// Vendor is the common shape every vendor record is normalized to.
type Vendor struct {
	Name             string   `json:"name"`
	Website          string   `json:"website,omitempty"`
	Description      string   `json:"description,omitempty"`
	Services         []string `json:"services,omitempty"`
	PricingModel     string   `json:"pricing_model,omitempty"`
	Certifications   []string `json:"certifications,omitempty"`
	Headquarters     string   `json:"headquarters,omitempty"`
	SourceURLs       []string `json:"source_urls,omitempty"`
	ComplianceScore  float64  `json:"compliance_score,omitempty"`
	ComplianceRating string   `json:"compliance_rating,omitempty"`
}

type ExternalVendors struct {
	Narration
	Vendors []Vendor `json:"vendors"`
}

// InternalVendorQuery carries the filters for a lookup in the vendor store.
type InternalVendorQuery struct {
	Narration
	VendorNames []string `json:"vendor_names,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// Unknown keeps a payload no rule recognized.
type Unknown struct {
	Narration
	Raw any `json:"raw"`
}

func (*PricingSuggestion) Intent() Intent   { return IntentPricingSuggestion }
func (*ManagerResponse) Intent() Intent     { return IntentManagerResponse }
func (*ChartData) Intent() Intent           { return IntentChartData }
func (*GeneralChat) Intent() Intent         { return IntentGeneralChat }
func (*Decision) Intent() Intent            { return IntentDecision }
func (*ContractData) Intent() Intent        { return IntentContractData }
func (*RfpData) Intent() Intent             { return IntentRfpData }
func (*RfqData) Intent() Intent             { return IntentRfqData }
func (*ExternalVendors) Intent() Intent     { return IntentExternalVendors }
func (*InternalVendorQuery) Intent() Intent { return IntentInternalVendorQuery }
func (*Unknown) Intent() Intent             { return IntentUnknown }

func (*PricingSuggestion) sealed()   {}
func (*ManagerResponse) sealed()     {}
func (*ChartData) sealed()           {}
func (*GeneralChat) sealed()         {}
func (*Decision) sealed()            {}
func (*ContractData) sealed()        {}
func (*RfpData) sealed()             {}
func (*RfqData) sealed()             {}
func (*ExternalVendors) sealed()     {}
func (*InternalVendorQuery) sealed() {}
func (*Unknown) sealed()             {}
