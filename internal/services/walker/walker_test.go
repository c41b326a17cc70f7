package walker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/browser/browsertest"
)

type scriptedUI struct {
	mu        sync.Mutex
	answers   []Answer
	questions []models.PendingQuestion
	progress  []string
}

func (u *scriptedUI) Progress(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.progress = append(u.progress, text)
}

func (u *scriptedUI) Ask(ctx context.Context, q models.PendingQuestion) (Answer, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.questions = append(u.questions, q)
	if len(u.answers) == 0 {
		return Answer{Skipped: true}, nil
	}
	next := u.answers[0]
	u.answers = u.answers[1:]
	return next, nil
}

func (u *scriptedUI) questionTexts() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.questions))
	for i, q := range u.questions {
		out[i] = q.Text
	}
	return out
}

type memoryProfiles struct {
	mu         sync.Mutex
	remembered map[string]string
}

func (m *memoryProfiles) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return &models.Profile{UserID: userID}, nil
}

func (m *memoryProfiles) RememberAnswer(ctx context.Context, userID, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remembered == nil {
		m.remembered = make(map[string]string)
	}
	m.remembered[question] = answer
	return nil
}

type stubResumes struct {
	written string
	invalid bool
}

func (s *stubResumes) Inspect(path string) (*interfaces.ResumeInfo, error) {
	if s.invalid {
		return nil, assert.AnError
	}
	return &interfaces.ResumeInfo{Path: path, PageCount: 1}, nil
}

func (s *stubResumes) WriteResume(profile *models.Profile) (string, error) {
	s.written = "/tmp/" + profile.UserID + "-resume.pdf"
	return s.written, nil
}

func testProfile() *models.Profile {
	return &models.Profile{
		UserID:    "ada",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "555-0100",
		City:      "London",
	}
}

func testWalker(profiles interfaces.ProfileSource, resumes interfaces.ResumeService) *Walker {
	return NewWalker(Config{StepLimit: 8, WaitTimeout: 50 * time.Millisecond}, profiles, resumes, arbor.NewLogger())
}

func setup(t *testing.T, job *browsertest.SiteJob) (*browsertest.Site, *browsertest.FakePage, *models.JobRecord) {
	t.Helper()
	site := browsertest.NewSite("ada@example.com", "pw")
	site.AddJob(job)
	page := site.NewPage("ada")
	url := site.JobURL(job.ID)
	record := &models.JobRecord{
		ID:      common.JobID("ada", url, job.Title, job.Company),
		UserID:  "ada",
		Title:   job.Title,
		Company: job.Company,
		URL:     url,
	}
	return site, page, record
}

func contactStep() browsertest.SiteStep {
	return browsertest.SiteStep{Fields: []browsertest.SiteField{
		{ID: "first-name", Label: "First name", Kind: browsertest.FieldText, Required: true},
		{ID: "email", Label: "Email address", Kind: browsertest.FieldText, Required: true},
		{ID: "phone", Label: "Mobile phone number", Kind: browsertest.FieldText, Required: true},
	}}
}

func TestApply_TwoFreeTextQuestions(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "1", Title: "Engine Programmer", Company: "Babbage & Co", QuickApply: true,
		Steps: []browsertest.SiteStep{
			contactStep(),
			{Fields: []browsertest.SiteField{
				{ID: "why", Label: "Why do you want to work here?", Kind: browsertest.FieldTextarea, Required: true},
				{ID: "salary", Label: "What are your salary expectations?", Kind: browsertest.FieldText, Required: true},
			}},
		},
	})
	ui := &scriptedUI{answers: []Answer{{Text: "Curious about engines"}, {Text: "Fair pay"}}}
	profiles := &memoryProfiles{}

	result, err := testWalker(profiles, nil).Apply(context.Background(), page, job, testProfile(), ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
	assert.Equal(t, 1, site.Submitted("1"))

	assert.Equal(t, []string{"Why do you want to work here?", "What are your salary expectations?"}, ui.questionTexts())
	answers := site.Answers("1")
	assert.Equal(t, "Ada", answers["First name"])
	assert.Equal(t, "555-0100", answers["Mobile phone number"])
	assert.Equal(t, "Curious about engines", answers["Why do you want to work here?"])
	assert.Equal(t, "Fair pay", profiles.remembered["What are your salary expectations?"])
}

func TestApply_UsesRememberedAnswers(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "2", Title: "Analyst", Company: "Difference Engines", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "sponsor", Label: "Will you require  sponsorship?", Kind: browsertest.FieldRadio, Options: []string{"Yes", "No"}, Required: true},
		}}},
	})
	profile := testProfile()
	profile.Answers = map[string]string{common.NormalizeKey("Will you require sponsorship?"): "no"}
	ui := &scriptedUI{}

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, profile, ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
	assert.Empty(t, ui.questionTexts())
	assert.Equal(t, "No", site.Answers("2")["Will you require  sponsorship?"])
}

func TestApply_CoverLetterRequired(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "3", Title: "Writer", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "why", Label: "Why us?", Kind: browsertest.FieldText, Required: true},
			{ID: "cover", Label: "A cover letter is required for this position", Kind: browsertest.FieldFile, Required: true},
		}}},
	})
	ui := &scriptedUI{answers: []Answer{{Text: "never asked"}}}

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), ui)
	require.NoError(t, err)
	assert.True(t, result.CoverLetter)
	assert.Equal(t, models.ApplicationError, result.Status)
	assert.Equal(t, ErrCoverLetterRequired.Error(), result.Message)
	assert.Empty(t, ui.questionTexts())
	assert.Zero(t, site.Submitted("3"))
}

func TestApply_OptionalCoverLetterIgnored(t *testing.T) {
	_, page, job := setup(t, &browsertest.SiteJob{
		ID: "3b", Title: "Writer", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "cover", Label: "Cover letter (optional)", Kind: browsertest.FieldFile},
		}}},
	})

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), &scriptedUI{})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
}

func TestApply_JobClosed(t *testing.T) {
	_, page, job := setup(t, &browsertest.SiteJob{ID: "4", Title: "Clerk", Company: "Acme", QuickApply: true, Closed: true})

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), &scriptedUI{})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationJobClosed, result.Status)
	assert.Equal(t, ErrJobClosed.Error(), result.Message)
}

func TestApply_NoQuickApply(t *testing.T) {
	_, page, job := setup(t, &browsertest.SiteJob{ID: "5", Title: "Clerk", Company: "Acme"})

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), &scriptedUI{})
	require.NoError(t, err)
	assert.Equal(t, ErrNoQuickApply.Error(), result.Message)
}

func TestApply_ChallengeInterrupts(t *testing.T) {
	_, page, job := setup(t, &browsertest.SiteJob{ID: "6", Title: "Clerk", Company: "Acme", QuickApply: true, Challenge: true})

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), &scriptedUI{})
	require.NoError(t, err)
	assert.True(t, result.Checkpoint)
}

func TestApply_SignedOutMidway(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{ID: "7", Title: "Clerk", Company: "Acme", QuickApply: true})
	page.OnClick(ApplyButtonSelector, func(p *browsertest.FakePage) {
		p.Show(site.LoginURL()+"?session_redirect=x", "<html><body><input id='username'></body></html>")
	})

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), &scriptedUI{})
	require.NoError(t, err)
	assert.True(t, result.LoggedOut)
}

func TestApply_SkippedRequiredQuestionFails(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "8", Title: "Clerk", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "why", Label: "Why us?", Kind: browsertest.FieldText, Required: true},
		}}},
	})
	ui := &scriptedUI{answers: []Answer{{Skipped: true}}}

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationError, result.Status)
	assert.Equal(t, ErrUnansweredRequired.Error(), result.Message)
	assert.Len(t, ui.questionTexts(), 1)
	assert.Zero(t, site.Submitted("8"))
}

func TestApply_NumericAnswerReasked(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "9", Title: "Gopher", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "go-years-numeric", Label: "How many years of experience do you have with Go?", Kind: browsertest.FieldNumeric, Required: true},
		}}},
	})
	ui := &scriptedUI{answers: []Answer{{Text: "five"}, {Text: "5"}}}

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
	require.Len(t, ui.questions, 2)
	assert.Equal(t, models.QuestionNumeric, ui.questions[0].Kind)
	assert.NotEqual(t, ui.questions[0].QuestionID, ui.questions[1].QuestionID)
	assert.Equal(t, "5", site.Answers("9")["How many years of experience do you have with Go?"])
}

func TestApply_SingleChoiceAndSelect(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "10", Title: "Gopher", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "auth", Label: "Are you legally authorized to work here?", Kind: browsertest.FieldRadio, Options: []string{"Yes", "No"}, Required: true},
			{ID: "degree", Label: "Highest degree", Kind: browsertest.FieldSelect, Options: []string{"Bachelor's", "Master's"}, Required: true},
			{ID: "terms", Label: "I agree to the terms", Kind: browsertest.FieldCheckbox, Required: true},
		}}},
	})
	ui := &scriptedUI{answers: []Answer{{Text: "YES"}, {Text: "2"}}}

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
	require.Len(t, ui.questions, 2)
	assert.Equal(t, models.QuestionSingleChoice, ui.questions[0].Kind)
	assert.Equal(t, []string{"Yes", "No"}, ui.questions[0].Options)

	answers := site.Answers("10")
	assert.Equal(t, "Yes", answers["Are you legally authorized to work here?"])
	assert.Equal(t, "Master's", answers["Highest degree"])
	assert.Equal(t, "checked", answers["I agree to the terms"])
}

func TestApply_GeneratesResumeWhenMissing(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "11", Title: "Gopher", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "resume", Label: "Upload resume", Kind: browsertest.FieldFile, Required: true},
		}}},
	})
	resumes := &stubResumes{}

	result, err := testWalker(nil, resumes).Apply(context.Background(), page, job, testProfile(), &scriptedUI{})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
	assert.Equal(t, resumes.written, site.Answers("11")["Upload resume"])
}

func TestApply_InvalidResumeIsProgressNote(t *testing.T) {
	_, page, job := setup(t, &browsertest.SiteJob{
		ID: "12", Title: "Gopher", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{ID: "resume", Label: "Upload resume", Kind: browsertest.FieldFile, Required: true},
		}}},
	})
	profile := testProfile()
	profile.ResumePath = "/data/ada.pdf"
	ui := &scriptedUI{}

	result, err := testWalker(nil, &stubResumes{invalid: true}).Apply(context.Background(), page, job, profile, ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status)
	assert.Contains(t, ui.progress, "Resume ada.pdf could not be validated: "+assert.AnError.Error())
}

func TestApply_CancelledWhileNavigating(t *testing.T) {
	_, page, job := setup(t, &browsertest.SiteJob{ID: "13", Title: "Clerk", Company: "Acme", QuickApply: true})
	page.HangNavigate = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := testWalker(nil, nil).Apply(ctx, page, job, testProfile(), &scriptedUI{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseFields(t *testing.T) {
	html := `<div class="jobs-easy-apply-modal"><form>
		<label for="a">First name</label><input id="a" type="text" required>
		<label for="b">Years</label><input id="b" type="number">
		<fieldset><legend>Relocate?</legend>
			<input type="radio" id="r-0" name="r" value="Yes" aria-required="true"><label for="r-0">Yes</label>
			<input type="radio" id="r-1" name="r" value="No"><label for="r-1">No</label>
		</fieldset>
		<label for="s">Degree</label><select id="s"><option value="">Select an option</option><option value="bs">Bachelor</option></select>
		<input type="hidden" id="h" value="x">
	</form></div>`

	fields, err := parseFields(html)
	require.NoError(t, err)
	require.Len(t, fields, 4)

	assert.Equal(t, field{Selector: `[id="a"]`, Label: "First name", Kind: kindText, Required: true}, fields[0])
	assert.Equal(t, kindNumeric, fields[1].Kind)
	assert.False(t, fields[1].Required)
	assert.Equal(t, field{
		Selector:     `[name="r"]`,
		Label:        "Relocate?",
		Kind:         kindRadio,
		Required:     true,
		Options:      []string{"Yes", "No"},
		OptionValues: []string{`[id="r-0"]`, `[id="r-1"]`},
	}, fields[2])
	assert.Equal(t, []string{"Bachelor"}, fields[3].Options)
	assert.Equal(t, []string{"bs"}, fields[3].OptionValues)
}

func TestParseFields_InputsWithoutIDs(t *testing.T) {
	html := `<div class="jobs-easy-apply-modal"><form>
		<input type="text" name="city" aria-label="City" required>
		<span id="notice-lbl">Notice period</span><span id="notice-unit">in weeks</span>
		<input type="number" name="notice" aria-labelledby="notice-lbl notice-unit">
		<label><input type="checkbox" name="consent" required> I consent</label>
		<fieldset><legend>Remote?</legend>
			<input type="radio" name="remote" value="Yes"><input type="radio" name="remote" value="No">
		</fieldset>
		<div class="jobs-easy-apply-form-section__grouping"><label>Portfolio</label><textarea name="portfolio"></textarea></div>
		<input type="text" aria-label="Unaddressable" required>
		<input type="text" name="mystery" required>
		<input type="checkbox" required>
	</form></div>`

	fields, err := parseFields(html)
	require.NoError(t, err)
	require.Len(t, fields, 5)

	assert.Equal(t, field{Selector: `[name="city"]`, Label: "City", Kind: kindText, Required: true}, fields[0])
	assert.Equal(t, field{Selector: `[name="notice"]`, Label: "Notice period in weeks", Kind: kindNumeric}, fields[1])
	assert.Equal(t, field{Selector: `[name="consent"]`, Label: "I consent", Kind: kindCheckbox, Required: true}, fields[2])
	assert.Equal(t, []string{"Yes", "No"}, fields[3].Options)
	assert.Equal(t, []string{`[name="remote"][value="Yes"]`, `[name="remote"][value="No"]`}, fields[3].OptionValues)
	assert.Equal(t, field{Selector: `[name="portfolio"]`, Label: "Portfolio", Kind: kindTextarea}, fields[4])
	for _, f := range fields {
		assert.NotEmpty(t, f.Selector)
		assert.NotEmpty(t, f.Label)
	}
}

func TestApply_FieldsAddressedByName(t *testing.T) {
	site, page, job := setup(t, &browsertest.SiteJob{
		ID: "14", Title: "Clerk", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{Name: "motivation", Label: "Why this role?", Kind: browsertest.FieldText, Required: true},
			{Name: "consent", Label: "I consent to data processing", Kind: browsertest.FieldCheckbox, Required: true},
		}}},
	})
	ui := &scriptedUI{answers: []Answer{{Text: "Steady work"}}}

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
	assert.Equal(t, []string{"Why this role?"}, ui.questionTexts())
	assert.Equal(t, "Steady work", page.Value(`[name="motivation"]`))
	assert.Equal(t, 1, page.ClickCount(`[name="consent"]`))

	answers := site.Answers("14")
	assert.Equal(t, "Steady work", answers["Why this role?"])
	assert.Equal(t, "checked", answers["I consent to data processing"])
}

func TestApply_UnaddressableFieldNeverAsked(t *testing.T) {
	_, page, job := setup(t, &browsertest.SiteJob{
		ID: "15", Title: "Clerk", Company: "Acme", QuickApply: true,
		Steps: []browsertest.SiteStep{{Fields: []browsertest.SiteField{
			{Label: "Ghost question", Kind: browsertest.FieldText},
		}}},
	})
	ui := &scriptedUI{}

	result, err := testWalker(nil, nil).Apply(context.Background(), page, job, testProfile(), ui)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationCompleted, result.Status, result.Message)
	assert.Empty(t, ui.questionTexts())
	assert.Empty(t, page.Values)
}

func TestProfileValue(t *testing.T) {
	p := testProfile()
	p.YearsExperience = 7
	assert.Equal(t, "Ada", profileValue("First name", p))
	assert.Equal(t, "Ada Lovelace", profileValue("Full name", p))
	assert.Equal(t, "", profileValue("Phone country code", p))
	assert.Equal(t, "7", profileValue("Years of experience", p))
	assert.Equal(t, "", profileValue("Years of experience with Kubernetes", p))
}
