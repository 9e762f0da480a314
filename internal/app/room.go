package app

import (
	"context"
	"log"
	"sort"
	"time"

	"livequiz-service/internal/domain"
)

// ControllerConfig carries the per-room knobs the registry resolves from
// configuration.
type ControllerConfig struct {
	MaxPlayers    int
	BonusFactor   float64
	DrainTimeout  time.Duration
	ResultRetries int
	ResultBackoff time.Duration
}

// ControllerDeps are the collaborators a controller needs at finish time.
type ControllerDeps struct {
	Results ResultStore
	Metrics *Metrics
	// OnRemove is invoked (once) after the room finished and drained, or
	// when the controller is torn down. The registry uses it to free the
	// room code.
	OnRemove func(code string)
	// Clock is test-overridable; defaults to time.Now.
	Clock func() time.Time
}

// Controller drives one room through its lifecycle. All reads and writes of
// the room's state happen on the controller's single command goroutine, so
// the state itself needs no locking. Multiple rooms run fully in parallel.
type Controller struct {
	code string
	cfg  ControllerConfig
	deps ControllerDeps

	cmds    chan func()
	stopped chan struct{}

	// Everything below is owned by the run loop.
	status       domain.RoomStatus
	quiz         domain.Quiz
	hostID       string
	currentIndex int
	openedAt     time.Time
	deadline     time.Time
	timer        *time.Timer
	createdAt    time.Time
	lastActivity time.Time

	roster       map[string]*domain.Participant
	answers      map[answerKey]domain.Answer
	scores       map[string]int
	elapsedTotal map[string]int64 // cumulative answer time, leaderboard tie-break

	handles  map[string]*Handle // handle id -> handle
	byParty  map[string]string  // participant id -> handle id
	finished bool
}

type answerKey struct {
	participantID string
	questionIndex int
}

// NewController constructs a room in WAITING and starts its command loop.
func NewController(code string, quiz domain.Quiz, hostID string, cfg ControllerConfig, deps ControllerDeps) *Controller {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	if cfg.BonusFactor == 0 {
		cfg.BonusFactor = DefaultBonusFactor
	}
	now := deps.Clock()
	c := &Controller{
		code:         code,
		cfg:          cfg,
		deps:         deps,
		cmds:         make(chan func(), 64),
		stopped:      make(chan struct{}),
		status:       domain.StatusWaiting,
		quiz:         quiz.Normalize(),
		hostID:       hostID,
		currentIndex: -1,
		createdAt:    now,
		lastActivity: now,
		roster:       make(map[string]*domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
		scores:       make(map[string]int),
		elapsedTotal: make(map[string]int64),
		handles:      make(map[string]*Handle),
		byParty:      make(map[string]string),
	}
	go c.run()
	return c
}

func (c *Controller) Code() string { return c.code }

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.stopped:
			// Drain commands already queued so repliers are not stranded.
			for {
				select {
				case fn := <-c.cmds:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post schedules fn on the command loop. It reports false once the
// controller has stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	select {
	case c.cmds <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// AttachRequest describes one admission into the room.
type AttachRequest struct {
	ParticipantID string
	DisplayName   string
	Role          domain.Role
	Addr          string
}

// Attach registers a connection with the room and returns its handle plus
// the joined payload (including a re-sync of the open question for
// reconnecting participants).
func (c *Controller) Attach(req AttachRequest) (*Handle, domain.JoinedPayload, error) {
	type result struct {
		h       *Handle
		payload domain.JoinedPayload
		err     error
	}
	reply := make(chan result, 1)
	ok := c.post(func() {
		h, payload, err := c.attach(req)
		reply <- result{h, payload, err}
	})
	if !ok {
		return nil, domain.JoinedPayload{}, domain.ErrRoomClosed
	}
	res := <-reply
	return res.h, res.payload, res.err
}

func (c *Controller) attach(req AttachRequest) (*Handle, domain.JoinedPayload, error) {
	if c.finished {
		return nil, domain.JoinedPayload{}, domain.ErrRoomClosed
	}
	now := c.deps.Clock()

	switch req.Role {
	case domain.RoleHost:
		if req.ParticipantID != c.hostID {
			return nil, domain.JoinedPayload{}, domain.ErrDuplicateHost
		}
		if id, ok := c.byParty[c.hostID]; ok {
			if h := c.handles[id]; h != nil && !h.Closed() {
				return nil, domain.JoinedPayload{}, domain.ErrDuplicateHost
			}
		}
	case domain.RolePlayer:
		if _, known := c.roster[req.ParticipantID]; !known && c.playerCount() >= c.cfg.MaxPlayers {
			return nil, domain.JoinedPayload{}, domain.ErrRoomFull
		}
	default:
		return nil, domain.JoinedPayload{}, domain.ErrWrongRole
	}

	// Replace any stale handle for the same identity; the roster entry is
	// reused so score and answers survive reconnects.
	if oldID, ok := c.byParty[req.ParticipantID]; ok {
		if old := c.handles[oldID]; old != nil {
			delete(c.handles, oldID)
			old.Close()
		}
		delete(c.byParty, req.ParticipantID)
	}

	entry, known := c.roster[req.ParticipantID]
	if !known {
		entry = &domain.Participant{
			ID:          req.ParticipantID,
			DisplayName: req.DisplayName,
			Role:        req.Role,
			ConnectedAt: now,
		}
		c.roster[req.ParticipantID] = entry
		if req.Role == domain.RolePlayer {
			c.scores[req.ParticipantID] = 0
		}
	}
	entry.LastSeenAt = now

	h := NewHandle(req.ParticipantID, req.Role, req.Addr)
	c.handles[h.ID()] = h
	c.byParty[req.ParticipantID] = h.ID()
	c.lastActivity = now
	c.deps.Metrics.Connections.Add(1)

	payload := domain.JoinedPayload{
		RoomCode:      c.code,
		ParticipantID: req.ParticipantID,
		Role:          req.Role,
		Status:        c.status,
		PlayerCount:   c.playerCount(),
	}
	if c.status == domain.StatusQuestionActive {
		q := c.questionOpenedPayload()
		payload.Question = &q
	}

	// Enqueue joined here, on the command loop, so it precedes any
	// broadcast the room emits after this admission.
	c.send(h, domain.Event{Type: domain.EventJoined, Payload: payload})

	c.broadcastExcept(h.ID(), domain.Event{
		Type: domain.EventParticipantJoined,
		Payload: domain.ParticipantPayload{
			ParticipantID: req.ParticipantID,
			DisplayName:   entry.DisplayName,
			PlayerCount:   c.playerCount(),
		},
	})
	return h, payload, nil
}

// Detach drops a handle. The roster entry and score are retained so the
// participant can reconnect under the same identity.
func (c *Controller) Detach(handleID string) {
	c.post(func() { c.detach(handleID) })
}

func (c *Controller) detach(handleID string) {
	h, ok := c.handles[handleID]
	if !ok {
		return
	}
	delete(c.handles, handleID)
	if cur, ok := c.byParty[h.ParticipantID()]; ok && cur == handleID {
		delete(c.byParty, h.ParticipantID())
	}
	h.Close()
	c.deps.Metrics.Disconnections.Add(1)

	if entry, ok := c.roster[h.ParticipantID()]; ok {
		c.broadcast(domain.Event{
			Type: domain.EventParticipantLeft,
			Payload: domain.ParticipantPayload{
				ParticipantID: entry.ID,
				DisplayName:   entry.DisplayName,
				PlayerCount:   c.playerCount(),
			},
		})
	}
}

// Start opens the first question. Only the room's host may start, and only
// from WAITING. Errors go to the issuing handle alone.
func (c *Controller) Start(handleID string) {
	c.post(func() {
		h, entry, ok := c.caller(handleID)
		if !ok {
			return
		}
		if entry.Role != domain.RoleHost {
			c.reject(h, domain.ErrNotHost)
			return
		}
		if c.status != domain.StatusWaiting {
			c.reject(h, domain.ErrAlreadyStarted)
			return
		}
		c.touch(entry)
		c.openQuestion(0)
	})
}

// Next advances a locked room to the following question, or finishes the
// quiz after the last one.
func (c *Controller) Next(handleID string) {
	c.post(func() {
		h, entry, ok := c.caller(handleID)
		if !ok {
			return
		}
		if entry.Role != domain.RoleHost {
			c.reject(h, domain.ErrNotHost)
			return
		}
		if c.status != domain.StatusQuestionLocked {
			c.reject(h, domain.ErrQuestionClosed)
			return
		}
		c.touch(entry)
		if c.currentIndex+1 < len(c.quiz.Questions) {
			c.openQuestion(c.currentIndex + 1)
			return
		}
		c.finish()
	})
}

// SubmitAnswer records a player's answer for the open question. First
// submission wins; later ones are rejected, not overwritten.
func (c *Controller) SubmitAnswer(handleID string, option int) {
	c.post(func() {
		h, entry, ok := c.caller(handleID)
		if !ok {
			return
		}
		if entry.Role == domain.RoleHost {
			c.reject(h, domain.ErrWrongRole)
			return
		}
		if c.status != domain.StatusQuestionActive {
			c.reject(h, domain.ErrQuestionClosed)
			return
		}
		now := c.deps.Clock()
		if !now.Before(c.deadline) {
			c.reject(h, domain.ErrQuestionClosed)
			return
		}
		key := answerKey{entry.ID, c.currentIndex}
		if _, dup := c.answers[key]; dup {
			c.reject(h, domain.ErrAlreadyAnswered)
			return
		}

		question := c.quiz.Questions[c.currentIndex]
		correct := option >= 0 && option == question.CorrectOption()
		elapsed := now.Sub(c.openedAt)
		c.answers[key] = domain.Answer{
			ParticipantID: entry.ID,
			QuestionIndex: c.currentIndex,
			Option:        option,
			Correct:       correct,
			ElapsedMs:     elapsed.Milliseconds(),
			SubmittedAt:   now,
		}
		delta := Score(correct, elapsed, question.TimeLimit(), question.PositiveMark, question.NegativeMark, c.cfg.BonusFactor)
		c.scores[entry.ID] += delta
		c.elapsedTotal[entry.ID] += elapsed.Milliseconds()
		c.touch(entry)
		c.deps.Metrics.AnswersProcessed.Add(1)

		// Every connected player has answered: no reason to wait out the
		// clock.
		if c.allConnectedPlayersAnswered() {
			c.lockQuestion(c.currentIndex)
		}
	})
}

// Pong records a liveness response from the client behind handleID.
func (c *Controller) Pong(handleID string) {
	c.post(func() {
		h, ok := c.handles[handleID]
		if !ok {
			return
		}
		h.TouchPong()
		if entry, ok := c.roster[h.ParticipantID()]; ok {
			entry.LastSeenAt = c.deps.Clock()
		}
	})
}

// RejectMessage reports a malformed inbound message back to its sender
// without touching room state.
func (c *Controller) RejectMessage(handleID string) {
	c.post(func() {
		if h, ok := c.handles[handleID]; ok {
			c.reject(h, domain.ErrMalformedMessage)
		}
	})
}

// SweepHandles pings handles whose last pong predates pingBefore and evicts
// those silent since evictBefore. Invoked by the supervisor.
func (c *Controller) SweepHandles(pingBefore, evictBefore time.Time) {
	c.post(func() {
		var dead []string
		for id, h := range c.handles {
			last := h.LastPong()
			switch {
			case last.Before(evictBefore):
				dead = append(dead, id)
			case last.Before(pingBefore):
				c.send(h, domain.Event{Type: domain.EventPing, Payload: domain.PingPayload{SentAt: c.deps.Clock()}})
			}
		}
		for _, id := range dead {
			c.detach(id)
		}
	})
}

// ForceFinish drives an abandoned room through the finish transition.
// Idempotent; used by the supervisor for idle-expired rooms.
func (c *Controller) ForceFinish() {
	c.post(func() {
		if !c.finished {
			c.finish()
		}
	})
}

// Snapshot answers the validation/stats queries without touching the
// command path of other rooms.
type Snapshot struct {
	Code          string
	Status        domain.RoomStatus
	PlayerCount   int
	HandleCount   int
	HostConnected bool
	CurrentIndex  int
	CreatedAt     time.Time
	LastActivity  time.Time
}

func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	ok := c.post(func() {
		reply <- Snapshot{
			Code:          c.code,
			Status:        c.status,
			PlayerCount:   c.playerCount(),
			HandleCount:   len(c.handles),
			HostConnected: c.hostConnected(),
			CurrentIndex:  c.currentIndex,
			CreatedAt:     c.createdAt,
			LastActivity:  c.lastActivity,
		}
	})
	if !ok {
		return Snapshot{Code: c.code, Status: domain.StatusFinished, CurrentIndex: -1}
	}
	return <-reply
}

// Shutdown stops the command loop and releases every handle. Idempotent.
func (c *Controller) Shutdown() {
	c.post(func() {
		if c.timer != nil {
			c.timer.Stop()
		}
		for id, h := range c.handles {
			delete(c.handles, id)
			h.Close()
		}
		select {
		case <-c.stopped:
		default:
			close(c.stopped)
		}
	})
}

// --- command-loop internals -------------------------------------------------

func (c *Controller) caller(handleID string) (*Handle, *domain.Participant, bool) {
	h, ok := c.handles[handleID]
	if !ok {
		return nil, nil, false
	}
	entry, ok := c.roster[h.ParticipantID()]
	if !ok {
		c.reject(h, domain.ErrNotInRoom)
		return nil, nil, false
	}
	return h, entry, true
}

func (c *Controller) touch(entry *domain.Participant) {
	now := c.deps.Clock()
	entry.LastSeenAt = now
	c.lastActivity = now
}

func (c *Controller) reject(h *Handle, err error) {
	c.deps.Metrics.Errors.Add(1)
	c.send(h, domain.ErrorEvent(err))
}

func (c *Controller) openQuestion(index int) {
	question := c.quiz.Questions[index]
	now := c.deps.Clock()
	c.status = domain.StatusQuestionActive
	c.currentIndex = index
	c.openedAt = now
	c.deadline = now.Add(question.TimeLimit())
	c.lastActivity = now
	c.deps.Metrics.QuestionsProcessed.Add(1)

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(question.TimeLimit(), func() {
		c.post(func() { c.lockQuestion(index) })
	})

	c.broadcast(domain.Event{Type: domain.EventQuestionOpened, Payload: c.questionOpenedPayload()})
}

func (c *Controller) questionOpenedPayload() domain.QuestionOpenedPayload {
	question := c.quiz.Questions[c.currentIndex]
	options := make([]string, len(question.Options))
	for i, opt := range question.Options {
		options[i] = opt.Text
	}
	return domain.QuestionOpenedPayload{
		Index:    c.currentIndex,
		Total:    len(c.quiz.Questions),
		Prompt:   question.Prompt,
		Options:  options,
		Deadline: c.deadline,
	}
}

// lockQuestion transitions ACTIVE→LOCKED for the given index. Stale timer
// fires for an older question are ignored.
func (c *Controller) lockQuestion(index int) {
	if c.status != domain.StatusQuestionActive || c.currentIndex != index {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.status = domain.StatusQuestionLocked
	question := c.quiz.Questions[index]

	answered, correctCount := 0, 0
	for id, entry := range c.roster {
		if entry.Role != domain.RolePlayer {
			continue
		}
		rec, ok := c.answers[answerKey{id, index}]
		if !ok {
			c.scores[id] += Score(false, 0, question.TimeLimit(), question.PositiveMark, question.NegativeMark, c.cfg.BonusFactor)
			continue
		}
		answered++
		if rec.Correct {
			correctCount++
		}
	}

	c.broadcast(domain.Event{Type: domain.EventQuestionLocked, Payload: domain.QuestionLockedPayload{
		Index:         index,
		CorrectOption: question.CorrectOption(),
		AnswerCount:   answered,
		CorrectCount:  correctCount,
		Leaderboard:   c.leaderboard(),
		MoreQuestions: index+1 < len(c.quiz.Questions),
	}})
}

// finish broadcasts the terminal state, hands results to the result store
// off-loop, and schedules teardown after a drain window. Persistence never
// blocks the finish broadcast.
func (c *Controller) finish() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.status = domain.StatusFinished
	c.finished = true

	final := c.leaderboard()
	c.broadcast(domain.Event{Type: domain.EventRoomFinished, Payload: domain.RoomFinishedPayload{
		RoomCode:    c.code,
		Leaderboard: final,
	}})

	results := c.collectResults()
	go c.persistResults(results)

	time.AfterFunc(c.cfg.DrainTimeout, func() {
		c.Shutdown()
		if c.deps.OnRemove != nil {
			c.deps.OnRemove(c.code)
		}
	})
}

func (c *Controller) collectResults() []domain.RoomResult {
	now := c.deps.Clock()
	out := make([]domain.RoomResult, 0, len(c.roster))
	for id, entry := range c.roster {
		if entry.Role != domain.RolePlayer {
			continue
		}
		var answers []domain.Answer
		for key, rec := range c.answers {
			if key.participantID == id {
				answers = append(answers, rec)
			}
		}
		sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionIndex < answers[j].QuestionIndex })
		out = append(out, domain.RoomResult{
			RoomCode:      c.code,
			QuizID:        c.quiz.ID,
			ParticipantID: id,
			DisplayName:   entry.DisplayName,
			Score:         c.scores[id],
			Answers:       answers,
			FinishedAt:    now,
		})
	}
	return out
}

// persistResults runs off the command loop with bounded retry and backoff.
// Still-failing results are logged and dropped; teardown proceeds anyway.
func (c *Controller) persistResults(results []domain.RoomResult) {
	if c.deps.Results == nil {
		return
	}
	for _, res := range results {
		var err error
		for attempt := 0; attempt <= c.cfg.ResultRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(c.cfg.ResultBackoff * time.Duration(attempt))
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = c.deps.Results.SaveResult(ctx, res)
			cancel()
			if err == nil {
				break
			}
		}
		if err != nil {
			c.deps.Metrics.Errors.Add(1)
			log.Printf("room %s: persist result for %s failed: %v", c.code, res.ParticipantID, err)
		}
	}
}

// leaderboard ranks players by score; ties break on lower cumulative answer
// time, then display name, then id, so ranking is deterministic.
func (c *Controller) leaderboard() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(c.scores))
	for id, score := range c.scores {
		entry, ok := c.roster[id]
		if !ok {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: id,
			DisplayName:   entry.DisplayName,
			Score:         score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ti, tj := c.elapsedTotal[entries[i].ParticipantID], c.elapsedTotal[entries[j].ParticipantID]
		if ti != tj {
			return ti < tj
		}
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (c *Controller) playerCount() int {
	n := 0
	for _, entry := range c.roster {
		if entry.Role == domain.RolePlayer {
			n++
		}
	}
	return n
}

func (c *Controller) hostConnected() bool {
	id, ok := c.byParty[c.hostID]
	if !ok {
		return false
	}
	h, ok := c.handles[id]
	return ok && !h.Closed()
}

func (c *Controller) allConnectedPlayersAnswered() bool {
	connected := 0
	for _, h := range c.handles {
		if h.Role() != domain.RolePlayer {
			continue
		}
		connected++
		if _, ok := c.answers[answerKey{h.ParticipantID(), c.currentIndex}]; !ok {
			return false
		}
	}
	return connected > 0
}

// send enqueues to one handle, evicting it on overflow so a stalled socket
// only ever degrades its own delivery.
func (c *Controller) send(h *Handle, ev domain.Event) {
	if h.Enqueue(ev) {
		c.deps.Metrics.MessagesSent.Add(1)
		return
	}
	c.detach(h.ID())
}

func (c *Controller) broadcast(ev domain.Event) {
	c.broadcastExcept("", ev)
}

func (c *Controller) broadcastExcept(skipHandleID string, ev domain.Event) {
	var overflowed []*Handle
	for id, h := range c.handles {
		if id == skipHandleID {
			continue
		}
		if h.Enqueue(ev) {
			c.deps.Metrics.MessagesSent.Add(1)
		} else {
			overflowed = append(overflowed, h)
		}
	}
	for _, h := range overflowed {
		c.detach(h.ID())
	}
}
