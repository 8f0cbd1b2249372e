package listener_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intersect-mbo/treasury-indexer/internal/adapter"
	"github.com/intersect-mbo/treasury-indexer/internal/applier"
	"github.com/intersect-mbo/treasury-indexer/internal/extractor"
	"github.com/intersect-mbo/treasury-indexer/internal/guard"
	"github.com/intersect-mbo/treasury-indexer/internal/listener"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/metadata"
	mockspkg "github.com/intersect-mbo/treasury-indexer/internal/mocks"
	"github.com/intersect-mbo/treasury-indexer/internal/registry"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/tracker"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

const (
	treasuryAddress    = "addr_treasury"
	treasuryScriptHash = "script_treasury"
)

// testListenerMocks contains all the mocks needed for testing the listener
type testListenerMocks struct {
	ctrl      *gomock.Controller
	natsJS    *mockspkg.MockNatsJetStream
	natsConn  *mockspkg.MockNatsConn
	jetStream *mockspkg.MockJetStream

	// json overrides the real codec when a test needs to force a decode
	// failure
	json    adapter.JSON
	store   store.Store
	tracker *tracker.SlotTracker
}

func setupTestListener(t *testing.T) *testListenerMocks {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	return &testListenerMocks{
		ctrl:      ctrl,
		natsJS:    mockspkg.NewMockNatsJetStream(ctrl),
		natsConn:  mockspkg.NewMockNatsConn(ctrl),
		jetStream: mockspkg.NewMockJetStream(ctrl),
	}
}

func testConfig() listener.Config {
	return listener.Config{
		URL:            "nats://localhost:4222",
		StreamName:     "CHAIN_EVENTS",
		ConsumerName:   "treasury-indexer",
		ConnectionName: "treasury-indexer-test",
		MaxReconnects:  10,
		ReconnectWait:  1 * time.Second,
		AckWaitTimeout: 30 * time.Second,
		MaxDeliver:     3,
		Workers:        2,
		QueueSize:      10,
	}
}

// newTestListener wires a listener with a real pipeline over the in-memory
// store behind the mocked NATS connection.
func (tm *testListenerMocks) newTestListener(t *testing.T) *listener.Listener {
	tm.store = store.NewMemoryStore()
	tm.tracker = tracker.NewSlotTracker(tm.store, 0)

	clock := mockspkg.NewMockClock(tm.ctrl)
	clock.EXPECT().Now().Return(time.Unix(1748779200, 0).UTC()).AnyTimes()
	httpClient := mockspkg.NewMockHTTPClient(tm.ctrl)

	addressRegistry := registry.NewAddressRegistry(treasuryAddress, treasuryScriptHash)
	dupGuard := guard.NewDuplicateGuard(tm.store, 0)
	vendorExtractor := extractor.NewVendorContractExtractor(tm.store, addressRegistry, treasuryAddress)
	eventApplier := applier.NewTreasuryEventApplier(tm.store, dupGuard, vendorExtractor, clock, treasuryScriptHash, treasuryAddress)
	decoder := metadata.NewDecoder(metadata.NewAnchorFetcher(httpClient, 1024*1024))

	tm.natsJS.
		EXPECT().
		Connect(gomock.Any(), gomock.Any()).
		Return(tm.natsConn, tm.jetStream, nil)

	jsonAdapter := tm.json
	if jsonAdapter == nil {
		jsonAdapter = adapter.NewJSON()
	}

	l, err := listener.NewListener(
		testConfig(),
		tm.natsJS,
		jsonAdapter,
		decoder,
		eventApplier,
		addressRegistry,
		tm.tracker,
	)
	require.NoError(t, err)
	return l
}

func TestNewListener_Success(t *testing.T) {
	tm := setupTestListener(t)

	l := tm.newTestListener(t)
	assert.NotNil(t, l)
}

func TestNewListener_ConnectError(t *testing.T) {
	tm := setupTestListener(t)

	tm.natsJS.
		EXPECT().
		Connect(gomock.Any(), gomock.Any()).
		Return(nil, nil, assert.AnError)

	l, err := listener.NewListener(
		testConfig(),
		tm.natsJS,
		adapter.NewJSON(),
		nil,
		nil,
		registry.NewAddressRegistry(treasuryAddress, treasuryScriptHash),
		tracker.NewSlotTracker(store.NewMemoryStore(), 0),
	)
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestListener_Run_CreateConsumerError(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	tm.jetStream.
		EXPECT().
		CreateOrUpdateConsumer(gomock.Any(), "CHAIN_EVENTS", gomock.Any()).
		Return(nil, assert.AnError)

	err := l.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create/update consumer")
}

func TestListener_Run_ConsumeError(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	consumer := mockspkg.NewMockNatsConsumer(tm.ctrl)
	consumer.EXPECT().
		Info(gomock.Any()).
		Return(&jetstream.ConsumerInfo{Name: "treasury-indexer"}, nil)
	consumer.EXPECT().
		Consume(gomock.Any()).
		Return(nil, assert.AnError)

	tm.jetStream.
		EXPECT().
		CreateOrUpdateConsumer(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(consumer, nil)

	err := l.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create subscription")
}

// runWithHandler starts the listener with a mocked consumer and returns the
// captured message handler plus a cancel function that stops the run loop.
func runWithHandler(t *testing.T, tm *testListenerMocks, l *listener.Listener) (adapter.MessageHandler, func()) {
	handlerCh := make(chan adapter.MessageHandler, 1)

	consumeContext := mockspkg.NewMockConsumeContext(tm.ctrl)
	consumeContext.EXPECT().Stop().AnyTimes()

	consumer := mockspkg.NewMockNatsConsumer(tm.ctrl)
	consumer.EXPECT().
		Info(gomock.Any()).
		Return(&jetstream.ConsumerInfo{Name: "treasury-indexer"}, nil)
	consumer.EXPECT().
		Consume(gomock.Any()).
		DoAndReturn(func(handler adapter.MessageHandler, opts ...jetstream.PullConsumeOpt) (adapter.ConsumeContext, error) {
			handlerCh <- handler
			return consumeContext, nil
		})

	tm.jetStream.
		EXPECT().
		CreateOrUpdateConsumer(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(consumer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Run(ctx)
	}()

	var handler adapter.MessageHandler
	select {
	case handler = <-handlerCh:
	case <-time.After(5 * time.Second):
		t.Fatal("listener never started consuming")
	}

	return handler, func() {
		cancel()
		select {
		case err := <-errCh:
			assert.Equal(t, context.Canceled, err)
		case <-time.After(5 * time.Second):
			t.Fatal("listener did not shut down")
		}
	}
}

// ackMessage builds a message mock that signals when it is acked, naked or
// termed.
func ackMessage(tm *testListenerMocks, subject string, data []byte) (*mockspkg.MockJetStreamMessage, chan string) {
	outcome := make(chan string, 1)
	msg := mockspkg.NewMockJetStreamMessage(tm.ctrl)
	msg.EXPECT().Subject().Return(subject).AnyTimes()
	msg.EXPECT().Data().Return(data).AnyTimes()
	msg.EXPECT().Metadata().Return(&jetstream.MsgMetadata{NumDelivered: 1}, nil).AnyTimes()
	msg.EXPECT().Ack().DoAndReturn(func() error { outcome <- "ack"; return nil }).MaxTimes(1)
	msg.EXPECT().Nak().DoAndReturn(func() error { outcome <- "nak"; return nil }).MaxTimes(1)
	msg.EXPECT().Term().DoAndReturn(func() error { outcome <- "term"; return nil }).MaxTimes(1)
	return msg, outcome
}

func awaitOutcome(t *testing.T, outcome chan string) string {
	select {
	case o := <-outcome:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("message was never acknowledged")
		return ""
	}
}

func TestListener_BlockHeaderAdvancesWatermark(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	handler, stop := runWithHandler(t, tm, l)
	defer stop()

	msg, outcome := ackMessage(tm, listener.SubjectBlocks,
		[]byte(`{"slot": 1500, "block_height": 42, "block_hash": "abc"}`))
	handler(msg)

	assert.Equal(t, "ack", awaitOutcome(t, outcome))
	assert.Equal(t, int64(1500), tm.tracker.CurrentSlot())
}

func TestListener_FundEventProcessed(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	handler, stop := runWithHandler(t, tm, l)
	defer stop()

	payload := []byte(`{
		"tx_hash": "tx_fund_1",
		"slot": 2000,
		"block_height": 50,
		"metadata": {
			"1694": {
				"body": {
					"event": "fund",
					"identifier": "PO123",
					"milestones": {"M1": {"label": "Design"}}
				}
			}
		},
		"outputs": [
			{"address": "addr_treasury", "amount": 900},
			{"address": "addr_vendor1", "amount": 100}
		]
	}`)
	msg, outcome := ackMessage(tm, listener.SubjectMetadata, payload)
	handler(msg)

	assert.Equal(t, "ack", awaitOutcome(t, outcome))

	project, err := tm.store.GetProjectByIdentifier(context.Background(), "PO123")
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, int64(2000), tm.tracker.LastProcessedSlot())
}

func TestListener_MalformedMessageTerminated(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	handler, stop := runWithHandler(t, tm, l)
	defer stop()

	msg, outcome := ackMessage(tm, listener.SubjectMetadata, []byte(`not json`))
	handler(msg)

	assert.Equal(t, "term", awaitOutcome(t, outcome))
}

func TestListener_BlockHeaderUnmarshalFailureTerminated(t *testing.T) {
	tm := setupTestListener(t)

	jsonMock := mockspkg.NewMockJSON(tm.ctrl)
	jsonMock.EXPECT().
		Unmarshal(gomock.Any(), gomock.Any()).
		Return(assert.AnError)
	tm.json = jsonMock

	l := tm.newTestListener(t)

	handler, stop := runWithHandler(t, tm, l)
	defer stop()

	msg, outcome := ackMessage(tm, listener.SubjectBlocks, []byte(`{"slot": 1500}`))
	handler(msg)

	assert.Equal(t, "term", awaitOutcome(t, outcome))
	assert.Equal(t, int64(0), tm.tracker.CurrentSlot())
}

func TestListener_ForeignLabelDropped(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	handler, stop := runWithHandler(t, tm, l)
	defer stop()

	payload := []byte(`{
		"tx_hash": "tx_nft_1",
		"slot": 2100,
		"metadata": {"721": {"name": "some nft"}}
	}`)
	msg, outcome := ackMessage(tm, listener.SubjectMetadata, payload)
	handler(msg)

	assert.Equal(t, "ack", awaitOutcome(t, outcome))
	// Dropped before the pipeline, the watermark does not advance
	assert.Equal(t, int64(0), tm.tracker.LastProcessedSlot())
}

func TestListener_UntrackedAddressesDropped(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	handler, stop := runWithHandler(t, tm, l)
	defer stop()

	payload := []byte(`{
		"tx_hash": "tx_other_1",
		"slot": 2200,
		"metadata": {"1694": {"body": {"event": "fund", "identifier": "PX1"}}},
		"outputs": [{"address": "addr_stranger", "amount": 5}]
	}`)
	msg, outcome := ackMessage(tm, listener.SubjectMetadata, payload)
	handler(msg)

	assert.Equal(t, "ack", awaitOutcome(t, outcome))
	project, err := tm.store.GetProjectByIdentifier(context.Background(), "PX1")
	require.NoError(t, err)
	assert.Nil(t, project)
}

func TestListener_Close(t *testing.T) {
	tm := setupTestListener(t)
	l := tm.newTestListener(t)

	tm.natsConn.EXPECT().Close()

	l.Close()
}
