// Package checkpoint stores model parameters in the SafeTensors layout.
//
//	Format Structure:
//	  [8 bytes: header size N (uint64 LE)]
//	  [N bytes: JSON header]
//	  [tensor data: raw little-endian F32, concatenated in name order]
//
// The header maps every parameter name to its dtype, shape and byte range
// within the data section. The reserved "__metadata__" entry holds string
// metadata; Save records a SHA-256 of the data section there and Open
// verifies it when present.
//
// Files are memory-mapped on unix and read into memory elsewhere.
//
// Example usage:
//
//	if err := checkpoint.SaveModule("model.safetensors", translator, meta); err != nil {
//	    return err
//	}
//
//	r, err := checkpoint.Open("model.safetensors")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	if err := r.LoadInto(translator); err != nil {
//	    return err
//	}
package checkpoint
