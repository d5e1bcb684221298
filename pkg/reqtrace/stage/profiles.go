package stage

import "strconv"

// FuseOpName resolves a FUSE opcode to its protocol name. Unknown
// opcodes format as decimal numbers.
func FuseOpName(op uint32) string {
	if name, ok := fuseOpNames[op]; ok {
		return name
	}
	return strconv.FormatUint(uint64(op), 10)
}

// fuseOpNames follows include/uapi/linux/fuse.h. Opcodes 7 and 19 are
// unassigned in the protocol.
var fuseOpNames = map[uint32]string{
	1:    "LOOKUP",
	2:    "FORGET",
	3:    "GETATTR",
	4:    "SETATTR",
	5:    "READLINK",
	6:    "SYMLINK",
	8:    "MKNOD",
	9:    "MKDIR",
	10:   "UNLINK",
	11:   "RMDIR",
	12:   "RENAME",
	13:   "LINK",
	14:   "OPEN",
	15:   "READ",
	16:   "WRITE",
	17:   "STATFS",
	18:   "RELEASE",
	20:   "FSYNC",
	21:   "SETXATTR",
	22:   "GETXATTR",
	23:   "LISTXATTR",
	24:   "REMOVEXATTR",
	25:   "FLUSH",
	26:   "INIT",
	27:   "OPENDIR",
	28:   "READDIR",
	29:   "RELEASEDIR",
	30:   "FSYNCDIR",
	31:   "GETLK",
	32:   "SETLK",
	33:   "SETLKW",
	34:   "ACCESS",
	35:   "CREATE",
	36:   "INTERRUPT",
	37:   "BMAP",
	38:   "DESTROY",
	39:   "IOCTL",
	40:   "POLL",
	41:   "NOTIFY_REPLY",
	42:   "BATCH_FORGET",
	43:   "FALLOCATE",
	44:   "READDIRPLUS",
	45:   "RENAME2",
	46:   "LSEEK",
	47:   "COPY_FILE_RANGE",
	4096: "CUSE_INIT",
}

// fuseProfile tracks a kernel FUSE request from enqueue on the pending
// list to the reply reaching the caller. The alloc origin stage records
// when the issuing process entered request allocation, giving the
// alloc delta its queue-side setup time.
var fuseProfile = MustCompile(Schema{
	Name:  "fuse",
	Slots: []string{"queue", "recv", "send", "end"},
	Stages: []Stage{
		{ID: 0, Name: "queue", Slot: 0, Start: true},
		{ID: 1, Name: "end", Slot: 3, Terminal: true},
		{ID: 2, Name: "recv", Slot: 1},
		{ID: 3, Name: "send", Slot: 2},
		{ID: 4, Name: "alloc", Origin: true},
	},
	Deltas: []Delta{
		{Name: "queuing", From: 0, To: 1},
		{Name: "daemon", From: 1, To: 2},
		{Name: "response", From: 2, To: 3},
		{Name: "total", From: 0, To: 3},
	},
	OriginDelta: "alloc",
	StatsDelta:  "total",
	Categories:  fuseOpNames,
})

// fuseCopyProfile covers the reduced three-point variant used when only
// the userspace daemon round trip matters.
var fuseCopyProfile = MustCompile(Schema{
	Name:  "fusecopy",
	Slots: []string{"enqueue", "dequeue", "done"},
	Stages: []Stage{
		{ID: 0, Name: "enqueue", Slot: 0, Start: true},
		{ID: 1, Name: "dequeue", Slot: 1},
		{ID: 2, Name: "done", Slot: 2, Terminal: true},
	},
	Deltas: []Delta{
		{Name: "queuing", From: 0, To: 1},
		{Name: "daemon", From: 1, To: 2},
		{Name: "total", From: 0, To: 2},
	},
	StatsDelta: "total",
	Categories: fuseOpNames,
})

// rfuseProfile tracks RFUSE requests. RFUSE submits through per-core
// ring channels, so records carry the channel in the queue half of the
// correlation key and the same request id may be in flight on several
// channels at once.
var rfuseProfile = MustCompile(Schema{
	Name:  "rfuse",
	Slots: []string{"queued", "dequeued", "daemon_done", "end"},
	Stages: []Stage{
		{ID: 0, Name: "queued", Slot: 0, Start: true},
		{ID: 1, Name: "dequeued", Slot: 1},
		{ID: 2, Name: "daemon_done", Slot: 2},
		{ID: 3, Name: "end", Slot: 3, Terminal: true},
	},
	Deltas: []Delta{
		{Name: "queuing", From: 0, To: 1},
		{Name: "daemon", From: 1, To: 2},
		{Name: "completion", From: 2, To: 3},
		{Name: "total", From: 0, To: 3},
	},
	StatsDelta: "total",
	Categories: fuseOpNames,
})

// blkProfile tracks block layer requests from queue insertion to
// completion.
var blkProfile = MustCompile(Schema{
	Name:  "blk",
	Slots: []string{"insert", "issue", "complete"},
	Stages: []Stage{
		{ID: 0, Name: "insert", Slot: 0, Start: true},
		{ID: 1, Name: "issue", Slot: 1},
		{ID: 2, Name: "complete", Slot: 2, Terminal: true},
	},
	Deltas: []Delta{
		{Name: "queue", From: 0, To: 1},
		{Name: "device", From: 1, To: 2},
		{Name: "total", From: 0, To: 2},
	},
	StatsDelta: "total",
	Categories: map[uint32]string{
		0: "read",
		1: "write",
		2: "flush",
		3: "discard",
	},
})

func init() {
	MustRegister(fuseProfile)
	MustRegister(fuseCopyProfile)
	MustRegister(rfuseProfile)
	MustRegister(blkProfile)
}
