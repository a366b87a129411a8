// Package bpf holds the kernel programs that feed per-process accounting.
//
// go generate compiles flowwatch.c into flowwatch_bpfel.o, the object the
// default config loads. It needs clang and the libbpf headers; on ARM hosts
// swap the target arch define for -D__TARGET_ARCH_arm64.
package bpf

//go:generate go tool bpf2go -target bpfel -cflags "-D__TARGET_ARCH_x86" flowwatch flowwatch.c
