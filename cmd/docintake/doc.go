// Command docintake supervises the document classification worker and
// manages the classified content tree it produces.
//
//	docintake run                 run the worker until it finishes
//	docintake pending             list source documents not yet checkpointed
//	docintake tree ls|mkdir|mv|rm|drop
//	docintake checkpoint show|add|reset
//	docintake history             recent runs
//	docintake check               preflight checks
//	docintake config init|validate|show
package main
