package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const translatorPrescreenPrompt = `You are a recruitment screener for a certified translation agency evaluating freelance translator applications.
Respond with a single JSON object and nothing else.

Score on a 0-100 scale considering language pair demand, certification quality, experience versus claimed domains,
CAT tool coverage, rate expectation against market norms and any red flags.

Fields: overall_score (0-100), recommendation (proceed|staff_review|reject), demand_match (high|medium|low),
certification_quality (high|medium|low|none), experience_consistency (high|medium|low), sample_quality ("not_provided"),
rate_expectation_assessment (within_band|above_band|below_band|not_provided), red_flags (string[]), notes (string),
suggested_test_difficulty (beginner|intermediate|advanced), suggested_test_types (string[]), suggested_tier (standard|senior|expert).

Tiers: standard under 3 years with basic or no certifications; senior 3-7 years with a recognised certification;
expert 7+ years, several recognised certifications and specialist domains.
Scores: 70+ proceed to testing, 50-69 staff review, under 50 reject.`

const consultantPrescreenPrompt = `You are a recruitment screener evaluating cognitive debriefing consultant applications.
Consultants interview patients to check that translated clinical outcome assessments are understood as intended.
Respond with a single JSON object and nothing else.

Weighting: COA/PRO instrument experience 30%, ISPOR/FDA guideline familiarity 20%, interviewing skills 20%,
target language fluency 20%, debrief report writing 10%.

Fields: overall_score (0-100), recommendation (always "staff_review"), coa_instrument_experience, guideline_familiarity,
interviewing_skills, language_fluency, report_writing_experience (each strong|partial|weak), red_flags (string[]), notes (string).`

const translationAssessmentPrompt = `You are a translation quality assessor. Compare the applicant's translation with the source and the reference translation.
Respond with a single JSON object and nothing else.

Score 0-100 using MQM dimensions: accuracy 35%, fluency 25%, terminology 20%, formatting 10%, certification readiness 10%.

Fields: overall_score, pass (boolean), dimension_scores {accuracy, fluency, terminology, formatting, certification_readiness},
errors [{category, severity (minor|major|critical), location, note}], strengths (string[]), feedback_draft (string),
suggested_tier (standard|senior|expert), confidence (high|medium|low).
Scores: 80+ pass, 65-79 borderline, under 65 fail.`

const lqaAssessmentPrompt = `You are an LQA assessor. The applicant reviewed a flawed translation and reported errors using MQM categories
(Accuracy, Fluency, Terminology, Style, Locale Conventions, Design, Non-translation) with Minor, Major or Critical severity.
Compare the findings with the answer key. Missed critical errors weigh heavily, false positives moderately.
Respond with a single JSON object and nothing else.

Fields: overall_score, pass (boolean), errors_identified_correctly, errors_missed, false_positives (integers),
category_accuracy, severity_accuracy, comment_quality (0-100), detailed_feedback (string), strengths (string[]),
weaknesses (string[]), confidence (high|medium|low).
Scores: 80+ pass, 65-79 borderline, under 65 fail.`

func systemPrompt(kind Kind) string {
	switch kind {
	case KindTranslatorPrescreen:
		return translatorPrescreenPrompt
	case KindConsultantPrescreen:
		return consultantPrescreenPrompt
	case KindTranslationAssessment:
		return translationAssessmentPrompt
	case KindLQAAssessment:
		return lqaAssessmentPrompt
	default:
		return ""
	}
}

func maxTokens(kind Kind) int {
	if kind.IsPrescreen() {
		return 1024
	}
	return 2048
}

func buildUserPrompt(req ScoreRequest) (string, error) {
	switch {
	case req.Kind.IsPrescreen():
		if req.Applicant == nil {
			return "", fmt.Errorf("%s request requires an applicant profile", req.Kind)
		}
		if req.Kind == KindConsultantPrescreen {
			return consultantMessage(*req.Applicant), nil
		}
		return translatorMessage(*req.Applicant), nil
	case req.Kind == KindTranslationAssessment || req.Kind == KindLQAAssessment:
		if req.Attempt == nil {
			return "", fmt.Errorf("%s request requires a test attempt", req.Kind)
		}
		return attemptMessage(req.Kind, *req.Attempt), nil
	default:
		return "", fmt.Errorf("unsupported judgment kind %q", req.Kind)
	}
}

func translatorMessage(p ApplicantProfile) string {
	b := strings.Builder{}
	b.WriteString("# Translator application ")
	b.WriteString(p.ApplicationNumber)
	writeField(&b, "Name", p.FullName)
	writeField(&b, "Country", p.Country)
	writeField(&b, "Years of experience", optionalInt(p.YearsExperience))
	writeField(&b, "Education", p.EducationLevel)
	writeField(&b, "Certifications", strings.Join(p.Certifications, ", "))
	writeField(&b, "CAT tools", strings.Join(p.CATTools, ", "))
	writeField(&b, "Services", strings.Join(p.Services, ", "))
	writeField(&b, "Domains", strings.Join(p.Domains, ", "))
	writeField(&b, "Language pairs", strings.Join(p.LanguagePairs, "; "))
	writeField(&b, "Rate expectation (CAD/word)", optionalFloat(p.RateExpectation))
	writeField(&b, "Notes", p.Notes)
	return b.String()
}

func consultantMessage(p ApplicantProfile) string {
	b := strings.Builder{}
	b.WriteString("# Cognitive debriefing application ")
	b.WriteString(p.ApplicationNumber)
	writeField(&b, "Name", p.FullName)
	writeField(&b, "Country", p.Country)
	writeField(&b, "Native language", p.CogNativeLanguage)
	writeField(&b, "Years of experience", optionalInt(p.CogYearsExperience))
	writeField(&b, "Degree field", p.CogDegreeField)
	writeField(&b, "Credentials", p.CogCredentials)
	writeField(&b, "Instrument types", strings.Join(p.CogInstrumentTypes, ", "))
	writeField(&b, "Therapy areas", strings.Join(p.CogTherapyAreas, ", "))
	writeField(&b, "Pharma clients", p.CogPharmaClients)
	writeField(&b, "ISPOR familiarity", p.CogISPORFamiliarity)
	writeField(&b, "FDA familiarity", p.CogFDAFamiliarity)
	writeField(&b, "Prior debrief reports", fmt.Sprintf("%t", p.CogPriorDebriefReports))
	writeField(&b, "Notes", p.Notes)
	return b.String()
}

func attemptMessage(kind Kind, a TestAttempt) string {
	b := strings.Builder{}
	b.WriteString("# Test ")
	b.WriteString(strings.ToUpper(a.SourceLanguage) + "→" + strings.ToUpper(a.TargetLanguage))
	writeField(&b, "Domain", a.Domain)
	writeField(&b, "Service", a.ServiceType)
	writeField(&b, "Difficulty", a.Difficulty)
	writeSection(&b, "Instructions", a.Instructions)
	writeSection(&b, "Source text", a.SourceText)
	if kind == KindLQAAssessment {
		writeSection(&b, "Translation under review", a.LQASourceTranslation)
		if key, err := json.MarshalIndent(a.AnswerKey, "", "  "); err == nil {
			writeSection(&b, "Answer key", string(key))
		}
	} else {
		writeSection(&b, "Reference translation", a.ReferenceTranslation)
	}
	writeSection(&b, "Assessment rubric", a.Rubric)
	writeSection(&b, "Applicant submission", a.Submission)
	writeSection(&b, "Applicant notes", a.ApplicantNotes)
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("\n")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
}

func writeSection(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	b.WriteString("\n\n## ")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(body)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}
