package common

// Spaces
const SERVER_SPACE_NAME = "server_space"
const DEFAULT_DATA_DIR = "data"

// Artifact names
const GLOBAL_MODEL_ARTIFACT = "server_model"
const GLOBAL_WEIGHTS_ARTIFACT = "server_weights"
const CLIENT_WEIGHTS_SUFFIX = "_weights"
const CLIENT_MODEL_SUFFIX = "_model"

// Per-space documents
const STATUS_DOCUMENT = "status"
const CONNECTION_DOCUMENT = "connection"
const RUN_CONFIG_DOCUMENT = "run_config"
const LEARNING_CURVE_DOCUMENT = "learning_curve.csv"

// Status stages
const STAGE_STARTING = "starting"
const STAGE_RUNNING = "running"
const STAGE_EPOCH_COMPLETED = "epoch_completed"
const STAGE_IDLE = "idle"
const STAGE_WAITING = "waiting"

// Environment variables recognized by the client process
const ENV_CLIENT_ID = "CLIENT_ID"
const ENV_CLIENT_EPOCHS = "CLIENT_EPOCHS"
const ENV_SERVER_ADDRESS = "SERVER_ADDRESS"
const ENV_CLIENT_ADDRESS = "CLIENT_ADDRESS"
const ENV_DATA_DIR = "FL_DATA_DIR"

// Training defaults
const DEFAULT_ROUNDS = 5
const DEFAULT_EPOCHS = 1
const DEFAULT_BATCH_SIZE = 256
const LOOKBACK_WINDOW = 70
const TEST_SIZE = 100
const TRAIN_FRACTION = 0.7

// Events
const CLIENT_STATUS_CHANGE_EVENT_TYPE = "ClientStatusChanged"
const ROUND_COMPLETED_EVENT_TYPE = "RoundCompleted"
const RUN_FINISHED_EVENT_TYPE = "RunFinished"
