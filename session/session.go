// Package session identifies the running process for logging purposes and
// mints BroadcastId values for new broadcasts.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"os"
	"os/user"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/denisbrodbeck/machineid"
)

// SessionID identifies this process for the lifetime of the run. It is
// injected into every mlog line so that log entries from concurrent
// processes can be told apart. Global because logger.Send needs it without
// threading a context through every call site.
var SessionID string

var identity *IdentityT

func init() {
	initIdentity()
}

// IdentityT describes the client, host, and session a process is running
// as.
type IdentityT struct {
	Hostname  string    `json:"host"`
	Username  string    `json:"user"`
	MachineID string    `json:"machineid"`
	Goos      string    `json:"goos"`
	Goarch    string    `json:"goarch"`
	Goversion string    `json:"goversion"`
	Pid       int       `json:"pid"`
	SessionID string    `json:"session"`
	StartTime time.Time `json:"start"`
}

// String is the stringer fn for IdentityT.
func (s *IdentityT) String() string {
	return fmt.Sprintf("GO=%s GOOS=%s GOARCH=%s SESSIONID=%s HOSTNAME=%s USER=%s MACHINE=%s PID=%d",
		s.Goversion, s.Goos, s.Goarch, s.SessionID, s.Hostname, s.Username, s.MachineID, s.Pid)
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randStringBytes(rng *mathrand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rng.Intn(len(letterBytes))]
	}
	return string(b)
}

func initIdentity() {
	rng := mathrand.New(mathrand.NewSource(time.Now().UTC().UnixNano()))
	SessionID = randStringBytes(rng, 4)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	var userName string
	if current, err := user.Current(); err == nil {
		userName = current.Username
	} else {
		userName = "unknown"
	}
	userName = strings.Replace(userName, `\`, "_", -1)

	mid, e := machineid.ID()
	if e == nil {
		mid, e = machineid.ProtectedID(mid)
	}
	if e != nil {
		mid = hostname + "." + userName
	}
	if len(mid) > 8 {
		mid = mid[:8]
	}

	identity = &IdentityT{
		Hostname:  hostname,
		Username:  userName,
		MachineID: mid,
		Goos:      runtime.GOOS,
		Goarch:    runtime.GOARCH,
		Goversion: runtime.Version(),
		Pid:       os.Getpid(),
		SessionID: SessionID,
		StartTime: time.Now(),
	}
}

// Identity returns a description of the running process.
func Identity() *IdentityT {
	return identity
}

var broadcastSeq uint64

// NewBroadcastID mints a BroadcastId unique enough to never collide between
// broadcasts started by different producers, or by the same producer in
// quick succession: <machine-id prefix>-<pid>-<monotonic sequence>-<random
// suffix>. Collision would mean two unrelated values sharing a tracker
// entry, so the random suffix is sourced from crypto/rand rather than the
// seeded math/rand used for SessionID.
func NewBroadcastID() string {
	seq := atomic.AddUint64(&broadcastSeq, 1)
	suffix, err := randomHex(4)
	if err != nil {
		suffix = fmt.Sprintf("%08x", time.Now().UnixNano())
	}
	mid := "unknown"
	if identity != nil && identity.MachineID != "" {
		mid = identity.MachineID
	}
	return fmt.Sprintf("%s-%d-%d-%s", mid, os.Getpid(), seq, suffix)
}

func randomHex(n int) (string, error) {
	max := new(big.Int).Lsh(big.NewInt(1), uint(n*8))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	b := v.Bytes()
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return hex.EncodeToString(out), nil
}
