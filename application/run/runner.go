// Package run executes the per-account automation flow: open the chat,
// launch the mini app, work through quests, claim farming rewards and
// read out the balance and next farming timer.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"questfarm-go/core/outcome"
	"questfarm-go/core/state"
	"questfarm-go/domain/ledger"
	"questfarm-go/domain/quest"
	"questfarm-go/infrastructure/browser"
	"questfarm-go/infrastructure/logging"
)

const (
	telegramWebURL = "https://web.telegram.org/k/"

	// The chat UI has generated class names, so the search input and the
	// first search hit are addressed positionally.
	chatSearchInput = "body > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(2) > input:nth-of-type(1)"
	groupSearchHit  = "body > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(3) > div:nth-of-type(2) > div:nth-of-type(2) > div:nth-of-type(2) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(1) > div:nth-of-type(2) > ul:nth-of-type(1) > a:nth-of-type(1) > div:nth-of-type(1)"

	launchPopupButton = "button.popup-button.btn.primary.rp"

	tabSlot       = "#here-tabs > div:nth-of-type(%d)"
	mainQuestSlot = "body > div:nth-of-type(1) > div:nth-of-type(2) > div > div:nth-of-type(2) > div:nth-of-type(2) > div > div:nth-of-type(%d)"

	questionHeading = "div.react-modal-sheet-content h3"
	answerInput     = "#root input"
	answerSubmit    = "#root button"
	confirmScroller = "div.react-modal-sheet-scroller"
	confirmButton   = "div.react-modal-sheet-scroller button"

	// A finished quest slot renders this asset inside the button.
	completedMarkerAsset = "/assets/hot-check"

	homeTab     = 1
	missionsTab = 3
)

const (
	phaseAttempts  = 3
	phaseRetryWait = 5 * time.Second

	confirmWait = 120 * time.Second

	claimAppearPolls = 20
	claimAppearEvery = time.Second

	balancePolls     = 36
	balancePollEvery = 5 * time.Second
)

var (
	questSectionLabels   = []string{"Explore crypto", "Исследуйте мир крипты"}
	submitPasswordLabels = []string{"Submit password", "Отправить фразу"}
	completedLabels      = []string{"Completed", "Выполнено"}
)

var balancePattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Config holds runner dependencies.
type Config struct {
	GroupURL string
	// BotLink locates the mini-app anchor in the group chat; RefLink is
	// the fallback when no bot link is configured.
	BotLink    string
	RefLink    string
	Answers    *quest.AnswerTable
	// AnswersPath, when set, reloads the answer table before each quest
	// so edits to the file take effect without a restart.
	AnswersPath string
	Catalog    *quest.Catalog
	Balances   *ledger.BalanceLedger
	Completion *ledger.CompletionLedger
	// Registration, when set, records every submitted recovery phrase.
	Registration *ledger.RegistrationLog
	Logger       *slog.Logger
}

// Runner drives a single account through one full visit.
type Runner struct {
	groupURL     string
	botLink      string
	refLink      string
	answers      *quest.AnswerTable
	answersPath  string
	catalog      *quest.Catalog
	balances     *ledger.BalanceLedger
	completion   *ledger.CompletionLedger
	registration *ledger.RegistrationLog
	log          *slog.Logger

	// randMu guards rng: runs fired by the scheduler loop can overlap
	// the synchronous cohort pass on the same runner.
	randMu sync.Mutex
	rng    *rand.Rand
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// Result is what one account visit produced.
type Result struct {
	Username string
	Balance  float64
	// Remaining is the parsed farming timer plus jitter, nil when no
	// timer could be read.
	Remaining *time.Duration
	Final     state.RunState
	// Soft lists non-fatal problems hit along the way.
	Soft []string
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = quest.DefaultCatalog()
	}
	r := &Runner{
		groupURL:     cfg.GroupURL,
		botLink:      cfg.BotLink,
		refLink:      cfg.RefLink,
		answers:      cfg.Answers,
		answersPath:  cfg.AnswersPath,
		catalog:      catalog,
		balances:     cfg.Balances,
		completion:   cfg.Completion,
		registration: cfg.Registration,
		log:          logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:        sleepCtx,
	}
	r.jitter = func() time.Duration {
		r.randMu.Lock()
		defer r.randMu.Unlock()
		return quest.Jitter(r.rng)
	}
	return r
}

// Run performs one full visit for the account on an already-acquired
// driver. The returned error is non-nil only on cancellation; every
// other problem is reflected in the Result.
func (r *Runner) Run(ctx context.Context, drv browser.Driver, account string) (*Result, error) {
	res := &Result{Username: "N/A", Final: state.StateInit}
	log := r.log.With("account", account)

	type phase struct {
		name string
		to   state.RunState
		fn   func(context.Context, browser.Driver) outcome.Outcome
	}
	prerequisites := []phase{
		{"navigate", state.StateNavigated, r.navigate},
		{"join group", state.StateGroupJoined, r.joinGroup},
		{"open app", state.StateAppOpened, r.openApp},
	}
	for _, p := range prerequisites {
		oc := r.withRetry(ctx, p.name, func(ctx context.Context) outcome.Outcome {
			return p.fn(ctx, drv)
		})
		if !oc.Succeeded() {
			return r.abort(res, log, p.name, oc)
		}
		r.advance(res, p.to)
	}

	if r.completion.Contains(account) {
		log.Info("quests already completed, skipping")
	} else {
		oc := r.completeQuests(ctx, drv, account)
		if oc.Aborts() {
			return r.abort(res, log, "quests", oc)
		}
		if !oc.Succeeded() {
			log.Warn("quest pass incomplete", "reason", oc.Reason)
			res.Soft = append(res.Soft, oc.Reason)
			// Get back to the home screen so farming can proceed.
			if err := drv.Click(ctx, fmt.Sprintf(tabSlot, homeTab)); err != nil {
				log.Warn("could not return to home tab", "error", err)
			}
		}
	}
	r.advance(res, state.StateQuestsChecked)

	username, balance := r.readBalance(ctx, drv)
	res.Username = username
	res.Balance = balance
	r.balances.Upsert(account, username, balance)

	oc := r.farm(ctx, drv)
	if oc.Aborts() {
		return r.abort(res, log, "farming", oc)
	}
	if !oc.Succeeded() {
		log.Warn("farming incomplete", "reason", oc.Reason)
		res.Soft = append(res.Soft, oc.Reason)
	}
	r.advance(res, state.StateFarmed)

	if updated, ok := r.claimedBalance(ctx, drv); ok {
		res.Balance = updated
		r.balances.Upsert(account, username, updated)
	}
	r.advance(res, state.StateBalanceRead)

	if texts, err := drv.Texts(ctx, "p"); err == nil {
		if remaining, ok := quest.ParseRemainingTime(texts); ok {
			remaining += r.jitter()
			res.Remaining = &remaining
			log.Info("next farming window parsed", "remaining", remaining)
		} else {
			log.Warn("no farming timer found")
		}
	}

	r.advance(res, state.StateDone)
	return res, nil
}

// advance moves the result to the next state, refusing anything the
// transition table does not allow.
func (r *Runner) advance(res *Result, to state.RunState) {
	if !res.Final.CanTransitionTo(to) {
		r.log.Error("state advance rejected",
			"error", state.NewTransitionError(res.Final, to, "phase out of order"))
		return
	}
	res.Final = to
}

// abort finalizes a run that cannot continue. Cancellation propagates
// as an error; everything else is recorded on the result.
func (r *Runner) abort(res *Result, log *slog.Logger, phase string, oc outcome.Outcome) (*Result, error) {
	if oc.Kind == outcome.Cancelled {
		return res, oc.Err
	}
	log.Warn("run aborted", "phase", phase, "reason", oc.Reason, "error", oc.Err)
	res.Soft = append(res.Soft, oc.Reason)
	if oc.Kind == outcome.Fatal {
		r.advance(res, state.StateErrored)
	}
	return res, nil
}

func (r *Runner) withRetry(ctx context.Context, name string, fn func(context.Context) outcome.Outcome) outcome.Outcome {
	var last outcome.Outcome
	for attempt := 1; attempt <= phaseAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, phaseRetryWait); err != nil {
				return outcome.Canceled(err)
			}
		}
		last = fn(ctx)
		if last.Succeeded() || last.Aborts() {
			return last
		}
		r.log.Warn("phase failed, retrying", "phase", name, "attempt", attempt, "reason", last.Reason)
	}
	return last
}

func (r *Runner) navigate(ctx context.Context, drv browser.Driver) outcome.Outcome {
	if err := drv.Navigate(ctx, telegramWebURL); err != nil {
		return outcome.FromErr("open chat web client", err)
	}
	if err := drv.CloseExtraTabs(ctx); err != nil {
		r.log.Warn("could not close extra tabs", "error", err)
	}
	if err := r.sleep(ctx, r.randSeconds(5, 7)); err != nil {
		return outcome.Canceled(err)
	}
	return outcome.OK()
}

func (r *Runner) joinGroup(ctx context.Context, drv browser.Driver) outcome.Outcome {
	if err := drv.WaitVisible(ctx, chatSearchInput, 10*time.Second); err != nil {
		return outcome.FromErr("chat search input not found", err)
	}
	if err := drv.TypeSlowly(ctx, chatSearchInput, r.groupURL); err != nil {
		return outcome.FromErr("enter group url", err)
	}
	if err := drv.WaitVisible(ctx, groupSearchHit, 10*time.Second); err != nil {
		return outcome.FromErr("group search hit not found", err)
	}
	if err := drv.Click(ctx, groupSearchHit); err != nil {
		return outcome.FromErr("open group", err)
	}
	if err := r.sleep(ctx, r.randSeconds(5, 7)); err != nil {
		return outcome.Canceled(err)
	}
	return outcome.OK()
}

func (r *Runner) openApp(ctx context.Context, drv browser.Driver) outcome.Outcome {
	link := r.botLink
	if link == "" {
		link = r.refLink
	}
	linkSel := fmt.Sprintf(`a[href*=%q]`, link)
	if err := drv.WaitVisible(ctx, linkSel, 10*time.Second); err != nil {
		return outcome.FromErr("app link not found in chat", err)
	}
	if err := drv.Click(ctx, linkSel); err != nil {
		return outcome.FromErr("click app link", err)
	}
	if err := r.sleep(ctx, 3*time.Second); err != nil {
		return outcome.Canceled(err)
	}

	// First launch shows a confirmation popup.
	if ok, err := drv.Exists(ctx, launchPopupButton); err == nil && ok {
		if err := drv.Click(ctx, launchPopupButton); err != nil {
			r.log.Warn("launch popup click failed", "error", err)
		}
	}

	if err := r.sleep(ctx, r.randSeconds(15, 20)); err != nil {
		return outcome.Canceled(err)
	}
	if err := drv.SwitchToAppFrame(ctx); err != nil {
		return outcome.FromErr("mini app frame not found", err)
	}
	return outcome.OK()
}

// completeQuests walks the Missions tab: every main quest slot first,
// then the per-chain sections. The account is durably marked complete
// only when everything succeeded.
func (r *Runner) completeQuests(ctx context.Context, drv browser.Driver, account string) outcome.Outcome {
	if err := drv.Click(ctx, fmt.Sprintf(tabSlot, missionsTab)); err != nil {
		return outcome.FromErr("open missions tab", err)
	}

	if oc := r.mainQuests(ctx, drv, account); !oc.Succeeded() {
		return oc
	}
	if oc := r.sectionQuests(ctx, drv, account); !oc.Succeeded() {
		return oc
	}

	if err := r.completion.MarkComplete(account); err != nil {
		r.log.Error("could not persist quest completion", "account", account, "error", err)
	}

	if err := r.sleep(ctx, 3*time.Second); err != nil {
		return outcome.Canceled(err)
	}
	if err := drv.Click(ctx, fmt.Sprintf(tabSlot, homeTab)); err != nil {
		r.log.Warn("could not return to home tab", "error", err)
	}
	return outcome.OK()
}

func (r *Runner) mainQuests(ctx context.Context, drv browser.Driver, account string) outcome.Outcome {
	if done, err := r.questBlockCompleted(ctx, drv); err == nil && done {
		r.log.Info("main quest block already completed")
		return outcome.OK()
	}

	if err := drv.ClickContaining(ctx, questSectionLabels...); err != nil {
		return outcome.Soft("main quest section not found", err)
	}

	for i := 1; i <= r.catalog.MainQuestSlots; i++ {
		if ctx.Err() != nil {
			return outcome.Canceled(ctx.Err())
		}
		sel := fmt.Sprintf(mainQuestSlot, i)
		html, err := drv.OuterHTML(ctx, sel)
		if err != nil {
			return outcome.Softf("main quest slot %d not found", i)
		}
		if strings.Contains(html, completedMarkerAsset) {
			continue
		}
		if err := drv.Click(ctx, sel); err != nil {
			return outcome.Soft(fmt.Sprintf("open main quest %d", i), err)
		}
		if oc := r.answerQuest(ctx, drv, account); !oc.Succeeded() {
			return oc
		}
		// The answer flow leaves the quest list; reopen it for the
		// next slot unless everything is done now.
		if done, err := r.questBlockCompleted(ctx, drv); err == nil && done {
			return outcome.OK()
		}
		if err := drv.ClickContaining(ctx, questSectionLabels...); err != nil {
			return outcome.Soft("main quest section lost after answer", err)
		}
	}
	return outcome.OK()
}

func (r *Runner) sectionQuests(ctx context.Context, drv browser.Driver, account string) outcome.Outcome {
	for _, section := range r.catalog.Sections {
		if ctx.Err() != nil {
			return outcome.Canceled(ctx.Err())
		}
		if err := r.openMissionSection(ctx, drv, section.Name); err != nil {
			return outcome.Soft(fmt.Sprintf("section %s not found", section.Name), err)
		}
		if err := r.sleep(ctx, r.randSeconds(1, 2)); err != nil {
			return outcome.Canceled(err)
		}

		status, err := r.openSectionQuest(ctx, drv, section.Titles)
		if err != nil {
			return outcome.Soft(fmt.Sprintf("quest lookup in section %s", section.Name), err)
		}
		switch status {
		case "completed":
			r.log.Info("section quest already completed", "section", section.Name)
			if err := drv.Back(ctx); err == nil {
				_ = drv.SwitchToAppFrame(ctx)
			}
			continue
		case "clicked":
			if err := r.sleep(ctx, r.randSeconds(1, 2)); err != nil {
				return outcome.Canceled(err)
			}
			if oc := r.answerQuest(ctx, drv, account); !oc.Succeeded() {
				return oc
			}
		default:
			return outcome.Softf("quest not found in section %s", section.Name)
		}
	}
	return outcome.OK()
}

// answerQuest handles one opened quest: watch the video, look up the
// quiz answer and submit it.
func (r *Runner) answerQuest(ctx context.Context, drv browser.Driver, account string) outcome.Outcome {
	r.playVideo(ctx, drv)

	question, err := drv.Text(ctx, questionHeading)
	if err != nil {
		return outcome.FromErr("quest question not found", err)
	}
	answer, ok := r.answerTable().Lookup(question)
	if !ok {
		return outcome.Softf("no answer for question %q", strings.TrimSpace(question))
	}

	if err := drv.ClickByText(ctx, submitPasswordLabels...); err != nil {
		return outcome.FromErr("submit password button not found", err)
	}
	if err := r.sleep(ctx, 2*time.Second); err != nil {
		return outcome.Canceled(err)
	}
	if err := drv.TypeSlowly(ctx, answerInput, answer); err != nil {
		return outcome.FromErr("enter answer", err)
	}
	if err := drv.Click(ctx, answerSubmit); err != nil {
		return outcome.FromErr("submit answer", err)
	}
	if r.registration != nil {
		if err := r.registration.Append(account, answer); err != nil {
			r.log.Warn("could not record submitted phrase", "error", err)
		}
	}

	if err := drv.WaitVisible(ctx, confirmScroller, confirmWait); err != nil {
		return outcome.FromErr("answer confirmation sheet not shown", err)
	}
	if err := drv.Click(ctx, confirmButton); err != nil {
		r.log.Warn("confirmation button click failed", "error", err)
	}
	return outcome.OK()
}

// playVideo opens the quest video, waits it out in its tab and returns
// to the mini app. Failures here never block the quiz.
func (r *Runner) playVideo(ctx context.Context, drv browser.Driver) {
	if err := drv.Click(ctx, "button, a"); err != nil {
		r.log.Warn("video button not found", "error", err)
		return
	}
	if err := r.sleep(ctx, 3*time.Second); err != nil {
		return
	}
	if err := r.sleep(ctx, 5*time.Second); err != nil {
		return
	}
	if err := drv.CloseExtraTabs(ctx); err != nil {
		r.log.Warn("could not close video tab", "error", err)
	}
	if err := drv.SwitchToAppFrame(ctx); err != nil {
		r.log.Warn("could not re-enter app frame after video", "error", err)
	}
}

// farm opens the storage view and claims the reward when the farming
// progress bar sits at 100%.
func (r *Runner) farm(ctx context.Context, drv browser.Driver) outcome.Outcome {
	var opened bool
	if err := drv.Eval(ctx, openStorageJS, &opened); err != nil || !opened {
		return outcome.Soft("storage view not found", err)
	}
	if err := r.sleep(ctx, r.randSeconds(1, 2)); err != nil {
		return outcome.Canceled(err)
	}

	var percent float64
	if err := drv.Eval(ctx, progressPercentJS, &percent); err != nil {
		return outcome.FromErr("read farming progress", err)
	}
	if percent < 0 {
		return outcome.Soft("farming progress bar not found", nil)
	}
	if percent < 100 {
		r.log.Info("farming still in progress", "percent", percent)
		return outcome.OK()
	}

	if err := r.sleep(ctx, 5*time.Second); err != nil {
		return outcome.Canceled(err)
	}
	return r.claim(ctx, drv)
}

// claim performs the two-step claim: the highlighted button first, then
// the plain claim button that replaces it, then waits for the balance
// to actually move.
func (r *Runner) claim(ctx context.Context, drv browser.Driver) outcome.Outcome {
	var clickedPink bool
	if err := drv.Eval(ctx, clickPinkButtonJS, &clickedPink); err == nil && clickedPink {
		for i := 0; i < claimAppearPolls; i++ {
			var ready bool
			if err := drv.Eval(ctx, hasPlainButtonJS, &ready); err == nil && ready {
				break
			}
			if err := r.sleep(ctx, claimAppearEvery); err != nil {
				return outcome.Canceled(err)
			}
		}
	}

	var claimed bool
	if err := drv.Eval(ctx, clickClaimButtonJS, &claimed); err != nil || !claimed {
		return outcome.Soft("claim button not found", err)
	}

	initial, _ := r.claimedBalance(ctx, drv)
	for i := 0; i < balancePolls; i++ {
		if err := r.sleep(ctx, balancePollEvery); err != nil {
			return outcome.Canceled(err)
		}
		if current, ok := r.claimedBalance(ctx, drv); ok && current != initial {
			r.log.Info("claim confirmed", "balance", current)
			return outcome.OK()
		}
	}
	return outcome.Soft("balance unchanged after claim", nil)
}

// readBalance scans the page for the username and the first plausible
// balance figure. Best effort; missing values come back as zero values.
func (r *Runner) readBalance(ctx context.Context, drv browser.Driver) (string, float64) {
	username := "N/A"
	if names, err := drv.Texts(ctx, "button p"); err == nil {
		for _, name := range names {
			if name != "" {
				username = name
				break
			}
		}
	}

	var balance float64
	if texts, err := drv.Texts(ctx, "p"); err == nil {
		for _, text := range texts {
			text = strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
			if !balancePattern.MatchString(text) {
				continue
			}
			if v, err := strconv.ParseFloat(text, 64); err == nil {
				balance = v
				break
			}
		}
	}
	return username, balance
}

// claimedBalance reads the balance from the two-line balance widget.
func (r *Runner) claimedBalance(ctx context.Context, drv browser.Driver) (float64, bool) {
	var value float64
	if err := drv.Eval(ctx, updateBalanceJS, &value); err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

func (r *Runner) questBlockCompleted(ctx context.Context, drv browser.Driver) (bool, error) {
	labels, _ := json.Marshal(questSectionLabels)
	completed, _ := json.Marshal(completedLabels)
	expr := fmt.Sprintf(questBlockCompletedJS, labels, completed)
	var done bool
	err := drv.Eval(ctx, expr, &done)
	return done, err
}

func (r *Runner) openMissionSection(ctx context.Context, drv browser.Driver, name string) error {
	quoted, _ := json.Marshal(strings.ToLower(name))
	expr := fmt.Sprintf(openSectionJS, quoted)
	var found bool
	if err := drv.Eval(ctx, expr, &found); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("section heading %q not found", name)
	}
	return nil
}

func (r *Runner) openSectionQuest(ctx context.Context, drv browser.Driver, titles []string) (string, error) {
	lowered := make([]string, len(titles))
	for i, t := range titles {
		lowered[i] = strings.ToLower(t)
	}
	quoted, _ := json.Marshal(lowered)
	completed, _ := json.Marshal(completedLabels)
	expr := fmt.Sprintf(openSectionQuestJS, quoted, completed)
	var status string
	if err := drv.Eval(ctx, expr, &status); err != nil {
		return "", err
	}
	return status, nil
}

// answerTable reloads the answer file when a path is configured, so a
// running farm picks up new answers without a restart.
func (r *Runner) answerTable() *quest.AnswerTable {
	if r.answersPath != "" {
		table, err := quest.LoadAnswers(r.answersPath)
		if err == nil {
			return table
		}
		r.log.Warn("could not reload answers, using cached table", "error", err)
	}
	return r.answers
}

func (r *Runner) randSeconds(min, max int) time.Duration {
	r.randMu.Lock()
	defer r.randMu.Unlock()
	return time.Duration(min+r.rng.Intn(max-min+1)) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
