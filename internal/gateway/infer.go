package gateway

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/promptforge/enhance-gateway/internal/auth"
	"github.com/promptforge/enhance-gateway/internal/config"
	"github.com/promptforge/enhance-gateway/internal/httputil"
	"github.com/promptforge/enhance-gateway/internal/ratelimit"
)

// builderFields are the prompt-builder form fields the gateway can suggest
// values for. Heuristics only fill fields the user has not already set.
type builderFields struct {
	Role             string   `json:"role,omitempty"`
	Tone             string   `json:"tone,omitempty"`
	LengthPreference string   `json:"lengthPreference,omitempty"`
	Format           []string `json:"format,omitempty"`
	Constraints      []string `json:"constraints,omitempty"`
}

type suggestionChip struct {
	ID          string         `json:"id"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Action      suggestionStep `json:"action"`
}

type suggestionStep struct {
	Type    string         `json:"type"`
	Updates *builderFields `json:"updates,omitempty"`
	Text    string         `json:"text,omitempty"`
}

type inferResponse struct {
	InferredUpdates builderFields      `json:"inferredUpdates"`
	InferredFields  []string           `json:"inferredFields"`
	SuggestionChips []suggestionChip   `json:"suggestionChips"`
	Confidence      map[string]float64 `json:"confidence"`
}

type inferBody struct {
	Prompt           string            `json:"prompt"`
	CurrentFields    *builderFields    `json:"current_fields"`
	CurrentFieldsAlt *builderFields    `json:"currentFields"`
	LockMetadata     map[string]string `json:"lock_metadata"`
	LockMetadataAlt  map[string]string `json:"lockMetadata"`
}

var inferFieldLabels = map[string]string{
	"role":             "Set AI persona",
	"tone":             "Adjust tone",
	"lengthPreference": "Tune response length",
	"format":           "Choose output format",
	"constraints":      "Add guidance constraints",
}

var inferFieldConfidence = map[string]float64{
	"role":             0.78,
	"tone":             0.72,
	"lengthPreference": 0.66,
	"format":           0.7,
	"constraints":      0.64,
}

var (
	roleDeveloperPattern  = regexp.MustCompile(`(code|debug|refactor|typescript|javascript|react|python|api)\b`)
	roleAnalystPattern    = regexp.MustCompile(`(analy[sz]e|dashboard|metrics|kpi|sql|cohort|forecast)\b`)
	roleCopywriterPattern = regexp.MustCompile(`(email|announcement|campaign|copy|headline|landing page)\b`)
	roleTeacherPattern    = regexp.MustCompile(`(lesson|teach|syllabus|quiz|curriculum)\b`)

	toneCasualPattern       = regexp.MustCompile(`(friendly|casual|informal|conversational)\b`)
	toneTechnicalPattern    = regexp.MustCompile(`(technical|architecture|spec|implementation)\b`)
	toneCreativePattern     = regexp.MustCompile(`(creative|story|brainstorm|campaign)\b`)
	toneAcademicPattern     = regexp.MustCompile(`(academic|citation|research)\b`)
	toneProfessionalPattern = regexp.MustCompile(`(executive|stakeholder|board|client)\b`)

	lengthBriefPattern    = regexp.MustCompile(`(brief|short|tl;dr|concise|summary)\b`)
	lengthDetailedPattern = regexp.MustCompile(`(detailed|deep dive|comprehensive|thorough)\b`)

	formatJSONPattern     = regexp.MustCompile(`(json)\b`)
	formatTablePattern    = regexp.MustCompile(`(table|tabular)\b`)
	formatBulletsPattern  = regexp.MustCompile(`(bullet|bulleted|list|checklist|steps)\b`)
	formatMarkdownPattern = regexp.MustCompile(`(markdown)\b`)

	constraintCitePattern  = regexp.MustCompile(`(cite|citation|source)\b`)
	constraintPlainPattern = regexp.MustCompile(`(plain language|simple wording|no jargon)\b`)
)

func chooseRole(prompt string) string {
	switch {
	case roleDeveloperPattern.MatchString(prompt):
		return "Software Developer"
	case roleAnalystPattern.MatchString(prompt):
		return "Data Analyst"
	case roleCopywriterPattern.MatchString(prompt):
		return "Expert Copywriter"
	case roleTeacherPattern.MatchString(prompt):
		return "Teacher"
	}
	return ""
}

func chooseTone(prompt string) string {
	switch {
	case toneCasualPattern.MatchString(prompt):
		return "Casual"
	case toneTechnicalPattern.MatchString(prompt):
		return "Technical"
	case toneCreativePattern.MatchString(prompt):
		return "Creative"
	case toneAcademicPattern.MatchString(prompt):
		return "Academic"
	case toneProfessionalPattern.MatchString(prompt):
		return "Professional"
	}
	return ""
}

func chooseLengthPreference(prompt string) string {
	switch {
	case lengthBriefPattern.MatchString(prompt):
		return "brief"
	case lengthDetailedPattern.MatchString(prompt):
		return "detailed"
	}
	return ""
}

func chooseFormat(prompt string) []string {
	switch {
	case formatJSONPattern.MatchString(prompt):
		return []string{"JSON"}
	case formatTablePattern.MatchString(prompt):
		return []string{"Table"}
	case formatBulletsPattern.MatchString(prompt):
		return []string{"Bullet points"}
	case formatMarkdownPattern.MatchString(prompt):
		return []string{"Markdown"}
	}
	return nil
}

func chooseConstraints(prompt string) []string {
	var values []string
	if constraintCitePattern.MatchString(prompt) {
		values = append(values, "Include citations")
	}
	if constraintPlainPattern.MatchString(prompt) {
		values = append(values, "Avoid jargon")
	}
	return values
}

func hasListValue(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func lockedToUser(lockMetadata map[string]string, field string) bool {
	return lockMetadata[field] == "user"
}

func newChip(field string, updates builderFields) suggestionChip {
	return suggestionChip{
		ID:          "set-" + field,
		Label:       inferFieldLabels[field],
		Description: "Apply AI-inferred details",
		Action:      suggestionStep{Type: "set_fields", Updates: &updates},
	}
}

// inferBuilderFieldUpdates runs the keyword heuristics over the prompt,
// filling only fields that are empty and not locked by the user.
func inferBuilderFieldUpdates(prompt string, current builderFields, lockMetadata map[string]string) inferResponse {
	normalized := strings.ToLower(prompt)
	resp := inferResponse{
		InferredFields:  []string{},
		SuggestionChips: []suggestionChip{},
		Confidence:      map[string]float64{},
	}

	if role := chooseRole(normalized); role != "" && strings.TrimSpace(current.Role) == "" && !lockedToUser(lockMetadata, "role") {
		resp.InferredUpdates.Role = role
		resp.InferredFields = append(resp.InferredFields, "role")
		resp.SuggestionChips = append(resp.SuggestionChips, newChip("role", builderFields{Role: role}))
		resp.Confidence["role"] = inferFieldConfidence["role"]
	}

	if tone := chooseTone(normalized); tone != "" && strings.TrimSpace(current.Tone) == "" && !lockedToUser(lockMetadata, "tone") {
		resp.InferredUpdates.Tone = tone
		resp.InferredFields = append(resp.InferredFields, "tone")
		resp.SuggestionChips = append(resp.SuggestionChips, newChip("tone", builderFields{Tone: tone}))
		resp.Confidence["tone"] = inferFieldConfidence["tone"]
	}

	if length := chooseLengthPreference(normalized); length != "" && strings.TrimSpace(current.LengthPreference) == "" && !lockedToUser(lockMetadata, "lengthPreference") {
		resp.InferredUpdates.LengthPreference = length
		resp.InferredFields = append(resp.InferredFields, "lengthPreference")
		resp.SuggestionChips = append(resp.SuggestionChips, newChip("lengthPreference", builderFields{LengthPreference: length}))
		resp.Confidence["lengthPreference"] = inferFieldConfidence["lengthPreference"]
	}

	if format := chooseFormat(normalized); len(format) > 0 && !hasListValue(current.Format) && !lockedToUser(lockMetadata, "format") {
		resp.InferredUpdates.Format = format
		resp.InferredFields = append(resp.InferredFields, "format")
		resp.SuggestionChips = append(resp.SuggestionChips, newChip("format", builderFields{Format: format}))
		resp.Confidence["format"] = inferFieldConfidence["format"]
	}

	if constraints := chooseConstraints(normalized); len(constraints) > 0 && !hasListValue(current.Constraints) && !lockedToUser(lockMetadata, "constraints") {
		resp.InferredUpdates.Constraints = constraints
		resp.InferredFields = append(resp.InferredFields, "constraints")
		resp.SuggestionChips = append(resp.SuggestionChips, newChip("constraints", builderFields{Constraints: constraints}))
		resp.Confidence["constraints"] = inferFieldConfidence["constraints"]
	}

	if len(resp.SuggestionChips) == 0 && len(normalized) > 20 {
		resp.SuggestionChips = append(resp.SuggestionChips, suggestionChip{
			ID:          "append-audience",
			Label:       "Add audience details",
			Description: "Append audience and success criteria hints.",
			Action: suggestionStep{
				Type: "append_prompt",
				Text: "\nAudience: [who this is for]\nDesired outcome: [what success looks like]",
			},
		})
	}

	return resp
}

// InferBuilderFields handles POST /infer-builder-fields: a cheap,
// non-streaming heuristic pass over the prompt.
func (h *Handler) InferBuilderFields(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	receivedAt := time.Now()
	cfg := h.cfg()

	status := h.serveInfer(w, r, reqID, cfg)
	if h.metrics != nil {
		h.metrics.RecordRequest("/infer-builder-fields", strconv.Itoa(status), float64(time.Since(receivedAt).Milliseconds()))
	}
}

func (h *Handler) serveInfer(w http.ResponseWriter, r *http.Request, reqID string, cfg *config.Config) int {
	corsHeaders, ok := resolveCORS(r, cfg.CORS)
	applyHeaders(w, corsHeaders)
	if !ok {
		httputil.WriteForbiddenError(w, reqID, "Origin is not allowed.")
		return http.StatusForbidden
	}

	var body inferBody
	if rerr := decodeJSONBody(w, r, cfg.Limits.MaxBodyBytes, &body); rerr != nil {
		httputil.WriteDetail(w, reqID, rerr.Status, rerr.Detail)
		return rerr.Status
	}

	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		httputil.WriteBadRequestError(w, reqID, "Prompt is required.")
		return http.StatusBadRequest
	}
	if len(prompt) > cfg.Limits.MaxInferPromptChars {
		httputil.WritePayloadTooLargeError(w, reqID,
			fmt.Sprintf("Prompt is too large. Maximum %d characters.", cfg.Limits.MaxInferPromptChars))
		return http.StatusRequestEntityTooLarge
	}

	clientIP := clientIP(r)
	identity, err := h.resolver.Authenticate(r.Context(), r.Header, clientIP)
	if err != nil {
		status, message, class := auth.Classify(err)
		if h.metrics != nil {
			h.metrics.RecordAuthFailure(class)
		}
		h.writeAuthFailure(w, reqID, status, message)
		return status
	}

	quota := ratelimit.Quota{
		Op:        "infer",
		PerMinute: int64(cfg.Limits.InferPerMinute),
		PerDay:    int64(cfg.Limits.InferPerDay),
	}
	if status := h.enforceQuota(w, r, reqID, quota, identity.RateKey, clientIP); status != 0 {
		return status
	}

	current := builderFields{}
	if body.CurrentFields != nil {
		current = *body.CurrentFields
	} else if body.CurrentFieldsAlt != nil {
		current = *body.CurrentFieldsAlt
	}
	locks := body.LockMetadata
	if locks == nil {
		locks = body.LockMetadataAlt
	}

	resp := inferBuilderFieldUpdates(prompt, current, locks)
	httputil.WriteJSON(w, reqID, http.StatusOK, resp)
	return http.StatusOK
}
