package nodebox

import "time"

const (
	AppName = "nodebox"

	DefaultDistro = "ubuntu"

	TermuxPrefix = "/data/data/com.termux/files/usr"

	NexusBinary       = "nexus-network"
	NexusInstallerURL = "https://cli.nexus.xyz/"
	NexusWorkerName   = "nexus"

	TashiInstallerURL    = "https://depin.tashi.network/install.sh"
	TashiInstallerURLAlt = "https://raw.githubusercontent.com/tashigg/tashi-depin-worker/refs/heads/main/install.sh"
	TashiContainer       = "tashi-depin-worker"
	TashiAuthVolume      = "tashi-depin-worker-auth"
	TashiUDPPort         = 39065

	DefaultStartGrace  = 5 * time.Second
	DefaultStopTimeout = 10 * time.Second

	EnvNodeID   = "NODE_ID"
	EnvWallet   = "WALLET_ADDRESS"
	EnvConfig   = "NODEBOX_CONFIG"
	EnvLogLevel = "NODEBOX_LOG_LEVEL"
	EnvRunDir   = "NODEBOX_RUN_DIR"
)
