// Package repository define los tipos del dominio OAuth y las interfaces de
// persistencia que los stores deben implementar.
//
// Los services dependen de estas interfaces, nunca de un driver concreto.
// Errores: los stores mapean sus errores nativos a los sentinels de este
// paquete (ErrNotFound, ErrConflict, ...) para que la capa de services pueda
// usar errors.Is sin conocer el backend.
package repository
