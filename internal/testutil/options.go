package testutil

// stubData holds the answers a StubAPI gives.
type stubData struct {
	name           string
	priority       int
	active         bool
	hint           string
	rank           int
	localRank      int
	worldSize      int
	localWorldSize int
	numNodes       int
	cpusPerTask    int
	gpuIDs         []string
	nodelist       []string
	hostname       string
	masterAddress  string
	masterPort     int
	initMethod     string
	unavailable    map[string]bool
	warnings       map[string][]string
	bootstrapErr   error
}

// defaultStub returns stubData describing a plausible single-node rank.
func defaultStub(name string) stubData {
	return stubData{
		name:           name,
		worldSize:      1,
		localWorldSize: 1,
		numNodes:       1,
		cpusPerTask:    1,
		gpuIDs:         []string{"0"},
		nodelist:       []string{"node01"},
		hostname:       "node01",
		masterAddress:  "node01",
		masterPort:     29500,
		initMethod:     "tcp://node01:29500",
		unavailable:    map[string]bool{},
		warnings:       map[string][]string{},
	}
}

// StubOption configures a StubAPI during construction.
type StubOption func(*stubData)

// Priority sets the stub's registry precedence.
func Priority(p int) StubOption {
	return func(s *stubData) { s.priority = p }
}

// Active makes the stub claim the environment.
func Active() StubOption {
	return func(s *stubData) { s.active = true }
}

// DetectionHint sets the human-facing detection description.
func DetectionHint(hint string) StubOption {
	return func(s *stubData) { s.hint = hint }
}

// Rank sets the stub's global rank.
func Rank(n int) StubOption {
	return func(s *stubData) { s.rank = n }
}

// LocalRank sets the stub's node-local rank.
func LocalRank(n int) StubOption {
	return func(s *stubData) { s.localRank = n }
}

// WorldSize sets the stub's process count.
func WorldSize(n int) StubOption {
	return func(s *stubData) { s.worldSize = n }
}

// LocalWorldSize sets the stub's per-node process count.
func LocalWorldSize(n int) StubOption {
	return func(s *stubData) { s.localWorldSize = n }
}

// NumNodes sets the stub's node count.
func NumNodes(n int) StubOption {
	return func(s *stubData) { s.numNodes = n }
}

// CPUsPerTask sets the stub's per-task CPU allocation.
func CPUsPerTask(n int) StubOption {
	return func(s *stubData) { s.cpusPerTask = n }
}

// GPUIDs sets the stub's visible GPU identifiers.
func GPUIDs(ids ...string) StubOption {
	return func(s *stubData) { s.gpuIDs = ids }
}

// Nodelist sets the stub's job host list.
func Nodelist(hosts ...string) StubOption {
	return func(s *stubData) { s.nodelist = hosts }
}

// Hostname sets the stub's local hostname.
func Hostname(host string) StubOption {
	return func(s *stubData) { s.hostname = host }
}

// MasterAddress sets the stub's rendezvous host.
func MasterAddress(addr string) StubOption {
	return func(s *stubData) { s.masterAddress = addr }
}

// MasterPort sets the stub's rendezvous port.
func MasterPort(port int) StubOption {
	return func(s *stubData) { s.masterPort = port }
}

// InitMethod sets the stub's rendezvous URL.
func InitMethod(method string) StubOption {
	return func(s *stubData) { s.initMethod = method }
}

// Unavailable marks queries that report no determinable value.
func Unavailable(queries ...string) StubOption {
	return func(s *stubData) {
		for _, q := range queries {
			s.unavailable[q] = true
		}
	}
}

// WarnOn raises an advisory each time the query runs.
func WarnOn(query, message string) StubOption {
	return func(s *stubData) {
		s.warnings[query] = append(s.warnings[query], message)
	}
}

// BootstrapErr makes the stub's one-time setup fail.
func BootstrapErr(err error) StubOption {
	return func(s *stubData) { s.bootstrapErr = err }
}
