package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"companion-agent/internal/agent/tools"
	"companion-agent/internal/common/config"
	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/observability"
	"companion-agent/internal/directory"
	"companion-agent/internal/livekit"
	"companion-agent/internal/media"
	"companion-agent/internal/memory"
	"companion-agent/internal/prompts"
	"companion-agent/internal/realtime"
	"companion-agent/internal/search"
	"companion-agent/internal/store"
	"companion-agent/internal/workflow"
)

// sipPrefix marks participants that joined via the SIP bridge; the rest of
// the identity is the caller's phone number.
const sipPrefix = "sip_"

const participantWaitTimeout = 2 * time.Minute

// RoomConn is the room surface the entrypoint needs.
type RoomConn interface {
	tools.RPCCaller
	StatePublisher
	WaitForParticipant(ctx context.Context) (*livekit.Participant, error)
	Close() error
}

// Entrypoint handles one room job end to end.
type Entrypoint struct {
	cfg       *config.Config
	directory *directory.Client
	memory    *memory.Client
	cache     *memory.ContextCache
	workflow  *workflow.Client
	search    *search.Client
	media     *media.Client
	callLog   *store.CallLog
	meter     *observability.Meter
	log       logger.Logger

	// injectable connectors, swapped out by tests
	connectRoom  func(ctx context.Context, serverURL, room, token string) (RoomConn, error)
	connectModel func(ctx context.Context) (Model, error)
}

// NewEntrypoint wires the job handler. cache, callLog, and meter may be nil.
func NewEntrypoint(
	cfg *config.Config,
	dir *directory.Client,
	mem *memory.Client,
	cache *memory.ContextCache,
	wf *workflow.Client,
	srch *search.Client,
	med *media.Client,
	callLog *store.CallLog,
	meter *observability.Meter,
	log logger.Logger,
) *Entrypoint {
	e := &Entrypoint{
		cfg:       cfg,
		directory: dir,
		memory:    mem,
		cache:     cache,
		workflow:  wf,
		search:    srch,
		media:     med,
		callLog:   callLog,
		meter:     meter,
		log:       log,
	}
	e.connectRoom = func(ctx context.Context, serverURL, room, token string) (RoomConn, error) {
		return livekit.ConnectRoom(ctx, serverURL, room, token, log)
	}
	e.connectModel = func(ctx context.Context) (Model, error) {
		return realtime.Connect(ctx, realtime.Options{
			BaseURL: cfg.Realtime.BaseURL,
			APIKey:  cfg.Realtime.APIKey,
			Model:   cfg.Realtime.Model,
		}, log)
	}
	return e
}

// Handle runs a single room job: join, classify the caller, bootstrap
// memory, and drive the call session.
func (e *Entrypoint) Handle(ctx context.Context, job *livekit.Job) error {
	serverURL := job.URL
	if serverURL == "" {
		serverURL = e.cfg.LiveKit.URL
	}
	token := job.Token
	if token == "" {
		var err error
		token, err = livekit.RoomToken(
			e.cfg.LiveKit.APIKey, e.cfg.LiveKit.APISecret,
			job.Room, "agent-"+e.cfg.LiveKit.AgentName,
		)
		if err != nil {
			return err
		}
	}

	room, err := e.connectRoom(ctx, serverURL, job.Room, token)
	if err != nil {
		return err
	}
	defer room.Close()

	waitCtx, cancel := context.WithTimeout(ctx, participantWaitTimeout)
	participant, err := room.WaitForParticipant(waitCtx)
	cancel()
	if err != nil {
		return err
	}

	caller, err := e.classify(ctx, participant)
	if err != nil {
		return err
	}

	sessionID := uuid.New().String()
	if err := e.memory.AddSession(ctx, sessionID, caller.userID); err != nil {
		// the call still works without memory; facts from this session
		// are lost but nothing else breaks
		e.log.WithError(err).Error("Memory session creation failed", map[string]interface{}{
			"userId": caller.userID,
		})
		sessionID = ""
	}

	chatCtx := e.seedChatContext(caller, participant.Attributes)

	model, err := e.connectModel(ctx)
	if err != nil {
		return err
	}
	defer model.Close()

	var ag Agent
	var registry *tools.Registry
	if caller.isFamilyMember {
		ag = NewOnboardingAgent(sessionID, caller.elderlyName, caller.callerName, caller.language, e.memory, e.log)
	} else {
		ag = NewCompanionAgent(sessionID, caller.user, e.memory, e.cfg.Memory.IngestBuffer, e.log)
		registry = tools.NewRegistry(tools.Deps{
			Search:              e.search,
			Media:               e.media,
			Workflow:            e.workflow,
			RPC:                 room,
			Session:             model,
			Log:                 e.log,
			ParticipantIdentity: participant.Identity,
			UserPhoneNumber:     caller.user.PhoneNumber,
			SIPCaller:           caller.isSIP,
		})
	}

	if e.callLog != nil && sessionID != "" {
		if err := e.callLog.StartSession(ctx, sessionID, caller.userID, ag.Kind(), job.Room); err != nil {
			e.log.WithError(err).Error("Recording call session failed", map[string]interface{}{
				"sessionId": sessionID,
			})
		}
	}

	e.log.Info("Call session starting", map[string]interface{}{
		"sessionId": sessionID,
		"room":      job.Room,
		"agent":     string(ag.Kind()),
		"sip":       caller.isSIP,
	})

	session := NewSession(SessionOptions{
		SessionID: sessionID,
		UserID:    caller.userID,
		Room:      job.Room,
		Voice:     e.cfg.Realtime.Voice,
		Meter:     e.meter,
	}, model, ag, chatCtx, registry, e.callLog, room, e.log)

	return session.Run(ctx)
}

// callerInfo is the result of classifying the remote participant.
type callerInfo struct {
	userID         string
	isSIP          bool
	isFamilyMember bool
	user           *directory.User // primary user, nil on the family path
	callerName     string
	language       string
	elderlyName    string
	memoryContext  string
}

// classify resolves who is calling. App participants carry the user ID as
// their identity; SIP participants carry "sip_<phoneNumber>" and are
// resolved through the directory, where the number may belong to the
// primary user or to a registered family member.
func (e *Entrypoint) classify(ctx context.Context, participant *livekit.Participant) (*callerInfo, error) {
	info := &callerInfo{userID: participant.Identity}

	if strings.HasPrefix(participant.Identity, sipPrefix) {
		info.isSIP = true
		phoneNumber := strings.TrimPrefix(participant.Identity, sipPrefix)

		result, err := e.directory.SearchByPhone(ctx, phoneNumber)
		if err != nil {
			return nil, err
		}
		if result.IsFamilyMember() {
			info.isFamilyMember = true
			info.userID = result.UserID
			info.callerName = result.Name
			info.language = result.Language
		} else {
			info.userID = result.ID
		}
	}

	if info.isFamilyMember {
		// fetch the primary user only for their name; the family path
		// never sees the user's memory context
		if owner, err := e.directory.GetUser(ctx, info.userID); err == nil {
			info.elderlyName = owner.Name
		} else {
			e.log.WithError(err).Warn("Primary user lookup for family call failed", map[string]interface{}{
				"userId": info.userID,
			})
		}
		return info, nil
	}

	user, err := e.directory.GetUser(ctx, info.userID)
	if err != nil {
		return nil, err
	}
	info.user = user
	info.userID = user.ID
	info.memoryContext = e.latestContext(ctx, user.ID)
	return info, nil
}

// latestContext returns the user's most recent memory context, preferring
// the Redis cache over a Zep round-trip.
func (e *Entrypoint) latestContext(ctx context.Context, userID string) string {
	if cached := e.cache.Get(ctx, userID); cached != "" {
		return cached
	}

	memCtx, err := e.memory.LatestContext(ctx, userID)
	if err != nil {
		e.log.WithError(err).Warn("Memory context bootstrap failed", map[string]interface{}{
			"userId": userID,
		})
		return ""
	}
	e.cache.Put(ctx, userID, memCtx)
	return memCtx
}

// seedChatContext builds the initial conversation: capability context on
// the companion path, then the memory block and the caller's initial
// request when present.
func (e *Entrypoint) seedChatContext(caller *callerInfo, attributes map[string]string) *ChatContext {
	chatCtx := NewChatContext()

	if !caller.isFamilyMember {
		chatCtx.AddMessage("system", prompts.AllSkills())
	}

	if caller.memoryContext != "" {
		chatCtx.AddMessage("user",
			"Here's what you already know about me:\n\n<user_context>\n"+caller.memoryContext+"\n</user_context>")
	}

	if req := attributes["initialRequest"]; req != "" {
		chatCtx.AddMessage("user",
			"Here's what I want to discuss with you:\n\n<user_request>\n"+req+"\n</user_request>")
	}

	return chatCtx
}
