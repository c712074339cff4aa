// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package chardev implements the user-boundary surface of one open
// subscriber: the fixed-layout read/write request records, the ioctl
// command dispatcher, the mmap buffer view, and poll. None of it issues
// a real syscall — there is no backing file descriptor in this
// host-resident core, only the in-process analogues bring-up glue would
// wire to a real character device node.
package chardev
