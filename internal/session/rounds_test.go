package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"party-rounds/internal/game"
)

func TestGuessioScenario(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	log := startedGame(t, svc, st, "CATS01", game.TypeGuessio, "zoe", "max", "lee")

	var started roundAnnouncement
	log.last(t, EventGameStarted, &started)
	if started.Round != 1 || started.PrompterID != "zoe" || started.TotalRounds != 3 {
		t.Fatalf("unexpected gameStarted %#v", started)
	}

	expectErr(t, svc.SubmitPrompt(ctx, "CATS01", "zoe", ""), game.ErrValidation)
	expectErr(t, svc.SubmitPrompt(ctx, "CATS01", "zoe", strings.Repeat("x", 501)), game.ErrValidation)
	expectErr(t, svc.SubmitPrompt(ctx, "CATS01", "max", "a dog"), game.ErrValidation)
	if r := mustGame(t, svc, "CATS01").Current(); r.Status != game.PhaseWaitingForPrompt || r.Guessio.Prompt != "" {
		t.Fatalf("rejected prompts must not change the round, got %s %q", r.Status, r.Guessio.Prompt)
	}

	if err := svc.SubmitPrompt(ctx, "CATS01", "zoe", "a cat wearing sunglasses"); err != nil {
		t.Fatalf("prompt: %v", err)
	}
	svc.Wait()
	r := mustGame(t, svc, "CATS01").Current()
	if r.Status != game.PhaseGuessing || r.Guessio.ImageURL == "" {
		t.Fatalf("expected guessing with an image, got %s %q", r.Status, r.Guessio.ImageURL)
	}
	if log.count(EventImageGenerating) != 1 || log.count(EventImageReady) != 1 {
		t.Fatalf("expected imageGenerating and imageReady")
	}

	expectErr(t, svc.SubmitGuess(ctx, "CATS01", "zoe", "a cat"), game.ErrValidation)
	if err := svc.SubmitGuess(ctx, "CATS01", "max", "a cat wearing sunglasses"); err != nil {
		t.Fatalf("guess max: %v", err)
	}
	expectErr(t, svc.SubmitGuess(ctx, "CATS01", "max", "again"), game.ErrAlreadySubmitted)
	if err := svc.SubmitGuess(ctx, "CATS01", "lee", "a dog"); err != nil {
		t.Fatalf("guess lee: %v", err)
	}
	svc.Wait()

	g := mustGame(t, svc, "CATS01")
	r = g.Current()
	if r.Status != game.PhaseRevealing || !r.Scored {
		t.Fatalf("expected revealed and scored round, got %s scored=%v", r.Status, r.Scored)
	}
	if r.Guessio.Guesses.Len() != 2 {
		t.Fatalf("expected exactly one guess per non-prompter, got %d", r.Guessio.Guesses.Len())
	}
	maxP, _ := g.Player("max")
	leeP, _ := g.Player("lee")
	zoeP, _ := g.Player("zoe")
	if maxP.Score != 10 || leeP.Score != 3 || zoeP.Score != 0 {
		t.Fatalf("unexpected scores max=%d lee=%d zoe=%d", maxP.Score, leeP.Score, zoeP.Score)
	}
	checkInvariants(t, g)

	var results roundResultsPayload
	log.last(t, EventRoundResults, &results)
	if len(results.Guesses) != 2 || results.Guesses[0].PlayerID != "max" || results.Prompt != "a cat wearing sunglasses" {
		t.Fatalf("unexpected roundResults %#v", results)
	}
	if results.Scores[0].PlayerID != "max" {
		t.Fatalf("expected standings led by max, got %#v", results.Scores)
	}

	if ended, err := svc.EndPhase(ctx, "CATS01", 1, game.PhaseGuessing); ended || err != nil {
		t.Fatalf("expected late timer to be a no-op, got %v %v", ended, err)
	}
	if advanced, err := svc.AdvanceRound(ctx, "CATS01", 1); !advanced || err != nil {
		t.Fatalf("advance: %v %v", advanced, err)
	}
	var next roundAnnouncement
	log.last(t, EventNextRound, &next)
	if next.Round != 2 || next.PrompterID != "max" {
		t.Fatalf("expected max to prompt round 2, got %#v", next)
	}
	checkInvariants(t, mustGame(t, svc, "CATS01"))
}

func TestGuessingTimerEndsWithPartialGuesses(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	log := startedGame(t, svc, st, "CATS02", game.TypeGuessio, "zoe", "max", "lee")

	if err := svc.SubmitPrompt(ctx, "CATS02", "zoe", "a red bicycle"); err != nil {
		t.Fatalf("prompt: %v", err)
	}
	svc.Wait()
	if err := svc.SubmitGuess(ctx, "CATS02", "max", "a red bicycle"); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if ended, err := svc.EndPhase(ctx, "CATS02", 1, game.PhaseGuessing); !ended || err != nil {
		t.Fatalf("end guessing: %v %v", ended, err)
	}
	if ended, _ := svc.EndPhase(ctx, "CATS02", 1, game.PhaseGuessing); ended {
		t.Fatalf("expected second phase end to be a no-op")
	}
	svc.Wait()
	expectErr(t, svc.SubmitGuess(ctx, "CATS02", "lee", "late"), game.ErrWrongPhase)
	if log.count(EventRoundResults) != 1 {
		t.Fatalf("expected exactly one roundResults, got %d", log.count(EventRoundResults))
	}
	checkInvariants(t, mustGame(t, svc, "CATS02"))
}

func TestEmojiStoryRound(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	log := startedGame(t, svc, st, "EMOJI2", game.TypeEmojiStory, "ann", "ben", "cat")

	expectErr(t, svc.SubmitEmojis(ctx, "EMOJI2", "ben", "🐶"), game.ErrNotYourTurn)
	expectErr(t, svc.SubmitEmojis(ctx, "EMOJI2", "ann", strings.Repeat("🐶", 101)), game.ErrValidation)

	visited := []string{}
	for _, id := range []string{"ann", "ben", "cat"} {
		r := mustGame(t, svc, "EMOJI2").Current()
		if r.Status != game.PhaseStoryBuilding {
			t.Fatalf("expected story building before %s, got %s", id, r.Status)
		}
		visited = append(visited, r.EmojiStory.CurrentTurnPlayerID)
		if err := svc.SubmitEmojis(ctx, "EMOJI2", id, "🐶🌧️"); err != nil {
			t.Fatalf("emojis %s: %v", id, err)
		}
	}
	if strings.Join(visited, ",") != "ann,ben,cat" {
		t.Fatalf("unexpected turn order %v", visited)
	}
	r := mustGame(t, svc, "EMOJI2").Current()
	if r.Status != game.PhaseInterpreting || len(r.EmojiStory.Contributions) != 3 {
		t.Fatalf("expected interpreting with 3 contributions, got %s %d", r.Status, len(r.EmojiStory.Contributions))
	}
	var complete storyCompletePayload
	log.last(t, EventStoryComplete, &complete)
	if complete.TimeToInterpret != 60 || len(complete.StoryContributions) != 3 {
		t.Fatalf("unexpected storyComplete %#v", complete)
	}

	for _, id := range []string{"ann", "ben", "cat"} {
		if err := svc.SubmitStoryInterpretation(ctx, "EMOJI2", id, "a dog in the rain by "+id); err != nil {
			t.Fatalf("interpretation %s: %v", id, err)
		}
	}
	if r := mustGame(t, svc, "EMOJI2").Current(); r.Status != game.PhaseVoting {
		t.Fatalf("expected voting, got %s", r.Status)
	}

	expectErr(t, svc.SubmitVote(ctx, "EMOJI2", "ann", "ann"), game.ErrValidation)
	if err := svc.SubmitVote(ctx, "EMOJI2", "ann", "ben"); err != nil {
		t.Fatalf("vote ann: %v", err)
	}
	expectErr(t, svc.SubmitVote(ctx, "EMOJI2", "ann", "cat"), game.ErrAlreadySubmitted)
	if err := svc.SubmitVote(ctx, "EMOJI2", "ben", "cat"); err != nil {
		t.Fatalf("vote ben: %v", err)
	}
	if err := svc.SubmitVote(ctx, "EMOJI2", "cat", "ben"); err != nil {
		t.Fatalf("vote cat: %v", err)
	}

	g := mustGame(t, svc, "EMOJI2")
	if g.Current().Status != game.PhaseRevealing {
		t.Fatalf("expected revealing, got %s", g.Current().Status)
	}
	ann, _ := g.Player("ann")
	ben, _ := g.Player("ben")
	cat, _ := g.Player("cat")
	if ann.Score != 0 || ben.Score != 4 || cat.Score != 2 {
		t.Fatalf("unexpected scores ann=%d ben=%d cat=%d", ann.Score, ben.Score, cat.Score)
	}
	checkInvariants(t, g)

	var results emojiStoryResultsPayload
	log.last(t, EventEmojiStoryRoundResults, &results)
	if len(results.Votes) != 3 || results.Scores[0].PlayerID != "ben" {
		t.Fatalf("unexpected results %#v", results)
	}
}

func TestEmojiStoryTurnTimeoutSkips(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	log := startedGame(t, svc, st, "EMOJI3", game.TypeEmojiStory, "ann", "ben")

	if ended, err := svc.EndStoryTurn(ctx, "EMOJI3", 1, 0); !ended || err != nil {
		t.Fatalf("end turn: %v %v", ended, err)
	}
	if ended, _ := svc.EndStoryTurn(ctx, "EMOJI3", 1, 0); ended {
		t.Fatalf("expected stale turn end to be a no-op")
	}
	var next nextTurnPayload
	log.last(t, EventNextTurn, &next)
	if next.CurrentTurnPlayerID != "ben" || next.SkippedPlayerID != "ann" {
		t.Fatalf("unexpected nextTurn %#v", next)
	}
	expectErr(t, svc.SubmitEmojis(ctx, "EMOJI3", "ann", "🎉"), game.ErrNotYourTurn)
	if err := svc.SubmitEmojis(ctx, "EMOJI3", "ben", "🎉"); err != nil {
		t.Fatalf("emojis: %v", err)
	}
	if r := mustGame(t, svc, "EMOJI3").Current(); r.Status != game.PhaseInterpreting {
		t.Fatalf("expected interpreting, got %s", r.Status)
	}
}

func TestEmojiStoryEmptyInterpretationsReveal(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	startedGame(t, svc, st, "EMOJI4", game.TypeEmojiStory, "ann", "ben")
	_, _ = svc.EndStoryTurn(ctx, "EMOJI4", 1, 0)
	_, _ = svc.EndStoryTurn(ctx, "EMOJI4", 1, 1)

	if ended, err := svc.EndPhase(ctx, "EMOJI4", 1, game.PhaseInterpreting); !ended || err != nil {
		t.Fatalf("end interpreting: %v %v", ended, err)
	}
	r := mustGame(t, svc, "EMOJI4").Current()
	if r.Status != game.PhaseRevealing || !r.Scored {
		t.Fatalf("expected reveal without interpretations, got %s", r.Status)
	}
}

func twoTruthsInput(lieAt int) []StatementInput {
	out := []StatementInput{{Text: "I have been to Peru"}, {Text: "I own a kayak"}, {Text: "I can juggle"}}
	if lieAt >= 0 {
		out[lieAt].IsLie = true
	}
	return out
}

func TestSubmitStatementsValidation(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	startedGame(t, svc, st, "TRUTH2", game.TypeTwoTruths, "ann", "ben")

	twoLies := twoTruthsInput(0)
	twoLies[1].IsLie = true
	tooLong := twoTruthsInput(2)
	tooLong[0].Text = strings.Repeat("x", 201)
	blank := twoTruthsInput(2)
	blank[1].Text = "  "

	cases := map[string][]StatementInput{
		"two statements":  twoTruthsInput(1)[:2],
		"four statements": append(twoTruthsInput(1), StatementInput{Text: "extra"}),
		"no lie":          twoTruthsInput(-1),
		"two lies":        twoLies,
		"too long":        tooLong,
		"blank":           blank,
	}
	for name, input := range cases {
		if err := svc.SubmitStatements(ctx, "TRUTH2", "ann", input); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
	expectErr(t, svc.SubmitStatements(ctx, "TRUTH2", "ben", twoTruthsInput(0)), game.ErrNotYourTurn)
	if r := mustGame(t, svc, "TRUTH2").Current(); r.Status != game.PhaseWaitingForStatements || len(r.TwoTruths.Statements) != 0 {
		t.Fatalf("rejected statements must not change the round")
	}
}

func TestTwoTruthsScoring(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	log := startedGame(t, svc, st, "TRUTH3", game.TypeTwoTruths, "ann", "ben", "cat", "dan")

	if err := svc.SubmitStatements(ctx, "TRUTH3", "ann", twoTruthsInput(2)); err != nil {
		t.Fatalf("statements: %v", err)
	}
	raw := log.raw(t, EventStatementsReady)
	if strings.Contains(raw, "isLie") {
		t.Fatalf("statementsReady leaked the lie: %s", raw)
	}
	var ready statementsReadyPayload
	log.last(t, EventStatementsReady, &ready)
	if len(ready.Statements) != 3 || ready.Statements[2].ID != "ann_2" {
		t.Fatalf("unexpected statementsReady %#v", ready)
	}
	view := game.ViewOf(mustGame(t, svc, "TRUTH3"))
	for _, st := range view.Round.Statements {
		if st.IsLie != nil {
			t.Fatalf("view leaked the lie before reveal")
		}
	}

	expectErr(t, svc.SubmitTwoTruthsVote(ctx, "TRUTH3", "ann", "ann_2"), game.ErrValidation)
	expectErr(t, svc.SubmitTwoTruthsVote(ctx, "TRUTH3", "ben", "ann_9"), game.ErrValidation)
	if err := svc.SubmitTwoTruthsVote(ctx, "TRUTH3", "ben", "ann_2"); err != nil {
		t.Fatalf("vote ben: %v", err)
	}
	if err := svc.SubmitTwoTruthsVote(ctx, "TRUTH3", "cat", "ann_0"); err != nil {
		t.Fatalf("vote cat: %v", err)
	}
	// dan never votes; the voting timer closes the round.
	if ended, err := svc.EndPhase(ctx, "TRUTH3", 1, game.PhaseVoting); !ended || err != nil {
		t.Fatalf("end voting: %v %v", ended, err)
	}
	if ended, _ := svc.EndPhase(ctx, "TRUTH3", 1, game.PhaseVoting); ended {
		t.Fatalf("expected second end to be a no-op")
	}

	g := mustGame(t, svc, "TRUTH3")
	want := map[string]int{"ann": 4, "ben": 3, "cat": 0, "dan": 0}
	for id, score := range want {
		p, _ := g.Player(id)
		if p.Score != score {
			t.Fatalf("player %s score %d, want %d", id, p.Score, score)
		}
	}
	checkInvariants(t, g)
	if log.count(EventTwoTruthsRoundResults) != 1 {
		t.Fatalf("expected one results event, got %d", log.count(EventTwoTruthsRoundResults))
	}
	var results twoTruthsResultsPayload
	log.last(t, EventTwoTruthsRoundResults, &results)
	if len(results.Votes) != 2 || !results.Votes[0].WasCorrect || results.Statements[2].Votes != 1 {
		t.Fatalf("unexpected results %#v", results)
	}
}

func TestTwoTruthsAllVotesEndRound(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	startedGame(t, svc, st, "TRUTH4", game.TypeTwoTruths, "ann", "ben", "cat")

	if err := svc.SubmitStatements(ctx, "TRUTH4", "ann", twoTruthsInput(1)); err != nil {
		t.Fatalf("statements: %v", err)
	}
	_ = svc.SubmitTwoTruthsVote(ctx, "TRUTH4", "ben", "ann_1")
	_ = svc.SubmitTwoTruthsVote(ctx, "TRUTH4", "cat", "ann_1")

	g := mustGame(t, svc, "TRUTH4")
	if g.Current().Status != game.PhaseRevealing {
		t.Fatalf("expected reveal once every non-presenter voted, got %s", g.Current().Status)
	}
	ann, _ := g.Player("ann")
	if ann.Score != 0 {
		t.Fatalf("presenter fooled nobody and should score 0, got %d", ann.Score)
	}
}

func TestGameRunsToCompletion(t *testing.T) {
	svc, st := newTestService(t, Options{})
	ctx := context.Background()
	log := startedGame(t, svc, st, "TRUTH5", game.TypeTwoTruths, "ann", "ben")

	for round := 1; round <= 2; round++ {
		if ended, err := svc.EndPhase(ctx, "TRUTH5", round, game.PhaseWaitingForStatements); !ended || err != nil {
			t.Fatalf("skip round %d: %v %v", round, ended, err)
		}
		checkInvariants(t, mustGame(t, svc, "TRUTH5"))
		if advanced, err := svc.AdvanceRound(ctx, "TRUTH5", round); !advanced || err != nil {
			t.Fatalf("advance round %d: %v %v", round, advanced, err)
		}
	}
	if advanced, _ := svc.AdvanceRound(ctx, "TRUTH5", 2); advanced {
		t.Fatalf("expected advancing a completed game to be a no-op")
	}

	g := mustGame(t, svc, "TRUTH5")
	if g.Status != game.StatusCompleted || g.CurrentRound != g.Settings.MaxRounds || g.Settings.MaxRounds != 2 {
		t.Fatalf("unexpected final state %s round=%d max=%d", g.Status, g.CurrentRound, g.Settings.MaxRounds)
	}
	var skipped twoTruthsResultsPayload
	log.last(t, EventTwoTruthsRoundResults, &skipped)
	if !skipped.Skipped {
		t.Fatalf("expected skipped results")
	}
	var end gameEndPayload
	log.last(t, EventGameEnd, &end)
	if end.Winner == nil || end.Winner.ID != "ann" || len(end.FinalScores) != 2 {
		t.Fatalf("unexpected gameEnd %#v", end)
	}
	if svc.timers.Pending("TRUTH5") != 1 {
		t.Fatalf("expected only the retention timer pending, got %d", svc.timers.Pending("TRUTH5"))
	}
}

func TestRevealTimerAdvancesRound(t *testing.T) {
	svc, st := newTestService(t, Options{RevealDelay: 20 * time.Millisecond})
	ctx := context.Background()
	startedGame(t, svc, st, "CATS03", game.TypeGuessio, "zoe", "max")

	if err := svc.SubmitPrompt(ctx, "CATS03", "zoe", "a lighthouse"); err != nil {
		t.Fatalf("prompt: %v", err)
	}
	svc.Wait()
	if err := svc.SubmitGuess(ctx, "CATS03", "max", "lighthouse"); err != nil {
		t.Fatalf("guess: %v", err)
	}
	svc.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mustGame(t, svc, "CATS03").CurrentRound == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the reveal timer to start round 2")
}

func TestRetentionPurgesCompletedGame(t *testing.T) {
	svc, st := newTestService(t, Options{StoryRevealDelay: 10 * time.Millisecond, Retention: 20 * time.Millisecond})
	ctx := context.Background()
	startedGame(t, svc, st, "TRUTH6", game.TypeTwoTruths, "ann", "ben")

	for round := 1; round <= 2; round++ {
		deadline := time.Now().Add(2 * time.Second)
		for {
			if ended, _ := svc.EndPhase(ctx, "TRUTH6", round, game.PhaseWaitingForStatements); ended {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("round %d never became current", round)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := st.Exists(ctx, "TRUTH6"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected completed game to be purged")
}
